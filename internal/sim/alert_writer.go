package sim

// AlertWriter handles alerts raised by the heuristics.
type AlertWriter interface {
	WriteAlert(Alert) error
}
