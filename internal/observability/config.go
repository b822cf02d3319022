package observability

// Config captures opt-in observability toggles that wire into the rendezvous
// service.
type Config struct {
	EnablePprofTrace bool
}
