package markup

// Button is a platform-agnostic inline action attached to a notice. Exactly
// one of URL or Data is set: URL opens a link, Data round-trips through a
// callback event.
type Button struct {
	Label string
	URL   string
	Data  string
}
