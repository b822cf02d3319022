package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"warp-rally/netcode/internal/proto"
)

// wireCatalog pins every payload the data channel can carry, so the browser
// client can validate frames against one generated document.
type wireCatalog struct {
	Envelope         proto.Envelope                `json:"envelope"`
	Join             proto.JoinPayload             `json:"join"`
	Leave            proto.LeavePayload            `json:"leave"`
	PlayerList       proto.PlayerListPayload       `json:"playerList"`
	GameStart        proto.GameStartPayload        `json:"gameStart"`
	Input            proto.InputPayload            `json:"input"`
	FullState        proto.FullStatePayload        `json:"fullState"`
	DeltaState       proto.DeltaStatePayload       `json:"deltaState"`
	ProjectileFired  proto.ProjectileFiredPayload  `json:"projectileFired"`
	ProjectileImpact proto.ProjectileImpactPayload `json:"projectileImpact"`
	ShipDamaged      proto.ShipDamagedPayload      `json:"shipDamaged"`
	ShipDestroyed    proto.ShipDestroyedPayload    `json:"shipDestroyed"`
	ShipRespawn      proto.ShipRespawnPayload      `json:"shipRespawn"`
	BoosterCollected proto.BoosterCollectedPayload `json:"boosterCollected"`
	PlayerFinished   proto.PlayerFinishedPayload   `json:"playerFinished"`
	RaceOver         proto.RaceOverPayload         `json:"raceOver"`
	Ping             proto.PingPayload             `json:"ping"`
	Pong             proto.PongPayload             `json:"pong"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema := buildSchema()

	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(wireCatalog))
	schema.Title = "Warp Rally Wire Protocol"
	schema.Description = "Envelope and payload shapes carried on the peer data channel."
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
