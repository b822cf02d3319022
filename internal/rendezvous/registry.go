package rendezvous

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"
)

var (
	// ErrRoomNotFound reports a join against a code no live room carries.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull reports a join against a room at capacity.
	ErrRoomFull = errors.New("room full")
)

const (
	// RoomCapacity caps how many clients a single room admits.
	RoomCapacity = 8
	// CodeLength is the size of the human-shareable room code.
	CodeLength = 6
)

// codeAlphabet omits 0/O/1/I so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Member is one registered room occupant.
type Member struct {
	ID       string
	Name     string
	JoinedAt time.Time
}

type room struct {
	code       string
	hostID     string
	members    []Member
	createdAt  time.Time
	lastActive time.Time
}

// JoinResult reports the state a joiner needs to start negotiating with the
// existing occupants.
type JoinResult struct {
	Code    string
	HostID  string
	Members []Member
}

// LeaveResult reports what the remaining occupants must be told about a
// departure.
type LeaveResult struct {
	Code      string
	WasHost   bool
	NewHostID string
	Remaining []Member
	Destroyed bool
}

// RoomStatus is the non-mutating lookup result.
type RoomStatus struct {
	Exists      bool
	MemberCount int
	HostID      string
}

// RoomDiagnostics is one row of the diagnostics snapshot.
type RoomDiagnostics struct {
	Code       string `json:"code"`
	Members    int    `json:"members"`
	HostID     string `json:"hostId"`
	AgeSeconds int64  `json:"ageSeconds"`
}

// Registry owns every live room. It knows occupancy and host assignment and
// nothing else; negotiation payloads pass through the service without ever
// touching it.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*room
	memberOf map[string]string
	clock    func() time.Time
}

// NewRegistry creates an empty registry. clock defaults to time.Now and is
// injectable for tests.
func NewRegistry(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		rooms:    make(map[string]*room),
		memberOf: make(map[string]string),
		clock:    clock,
	}
}

// CreateRoom opens a fresh room with the requester as sole member and host.
func (r *Registry) CreateRoom(member Member) string {
	now := r.clock()
	member.JoinedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for {
		code = generateCode(CodeLength)
		if _, exists := r.rooms[code]; !exists {
			break
		}
	}

	r.rooms[code] = &room{
		code:       code,
		hostID:     member.ID,
		members:    []Member{member},
		createdAt:  now,
		lastActive: now,
	}
	r.memberOf[member.ID] = code
	return code
}

// JoinRoom adds a client to an existing room. Codes are case-insensitive.
func (r *Registry) JoinRoom(code string, member Member) (JoinResult, error) {
	code = NormalizeCode(code)
	now := r.clock()
	member.JoinedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}
	if len(rm.members) >= RoomCapacity {
		return JoinResult{}, ErrRoomFull
	}

	existing := cloneMembers(rm.members)
	rm.members = append(rm.members, member)
	rm.lastActive = now
	r.memberOf[member.ID] = code

	return JoinResult{Code: code, HostID: rm.hostID, Members: existing}, nil
}

// Leave removes a client from whatever room it occupies. When the host
// departs, the earliest-joined remaining member is promoted so every
// observer lands on the same successor. Empty rooms are destroyed.
func (r *Registry) Leave(clientID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.memberOf[clientID]
	if !ok {
		return LeaveResult{}, false
	}
	delete(r.memberOf, clientID)

	rm, ok := r.rooms[code]
	if !ok {
		return LeaveResult{}, false
	}

	idx := -1
	for i, m := range rm.members {
		if m.ID == clientID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LeaveResult{}, false
	}
	rm.members = append(rm.members[:idx], rm.members[idx+1:]...)
	rm.lastActive = r.clock()

	result := LeaveResult{Code: code, WasHost: rm.hostID == clientID}

	if len(rm.members) == 0 {
		delete(r.rooms, code)
		result.Destroyed = true
		return result, true
	}

	if result.WasHost {
		next := rm.members[0]
		for _, m := range rm.members[1:] {
			if m.JoinedAt.Before(next.JoinedAt) {
				next = m
			}
		}
		rm.hostID = next.ID
		result.NewHostID = next.ID
	}
	result.Remaining = cloneMembers(rm.members)
	return result, true
}

// RoomInfo looks a room up without mutating it.
func (r *Registry) RoomInfo(code string) RoomStatus {
	code = NormalizeCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		return RoomStatus{}
	}
	return RoomStatus{Exists: true, MemberCount: len(rm.members), HostID: rm.hostID}
}

// RoomOf reports which room a client currently occupies.
func (r *Registry) RoomOf(clientID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.memberOf[clientID]
	return code, ok
}

// MemberIDs lists the occupants of a room, excluding the given client.
func (r *Registry) MemberIDs(code string, except string) []string {
	code = NormalizeCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(rm.members))
	for _, m := range rm.members {
		if m.ID == except {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids
}

// Touch refreshes a room's activity clock.
func (r *Registry) Touch(code string) {
	code = NormalizeCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[code]; ok {
		rm.lastActive = r.clock()
	}
}

// RoomCount reports how many rooms are live.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// SweepIdle destroys rooms whose last activity is older than ttl and returns
// their codes. Occupied rooms count socket traffic as activity, so only
// abandoned rooms age out.
func (r *Registry) SweepIdle(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	var swept []string
	for code, rm := range r.rooms {
		if now.Sub(rm.lastActive) <= ttl {
			continue
		}
		for _, m := range rm.members {
			delete(r.memberOf, m.ID)
		}
		delete(r.rooms, code)
		swept = append(swept, code)
	}
	return swept
}

// DiagnosticsSnapshot copies out per-room occupancy for the diagnostics
// endpoint.
func (r *Registry) DiagnosticsSnapshot() []RoomDiagnostics {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]RoomDiagnostics, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, RoomDiagnostics{
			Code:       rm.code,
			Members:    len(rm.members),
			HostID:     rm.hostID,
			AgeSeconds: int64(now.Sub(rm.createdAt).Seconds()),
		})
	}
	return rooms
}

// NormalizeCode uppercases a room code so joins are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func cloneMembers(members []Member) []Member {
	if len(members) == 0 {
		return nil
	}
	cloned := make([]Member, len(members))
	copy(cloned, members)
	return cloned
}

func generateCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, max)
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b)
}
