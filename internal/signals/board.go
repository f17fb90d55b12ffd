package signals

// Lines names the GPIO line offsets of the signal hardware.
type Lines struct {
	// Chip is the gpiochip device; empty probes every chip.
	Chip string

	LeftRelay      int
	RightRelay     int
	EmergencyLight int

	LeftButton   int
	RightButton  int
	HazardButton int
	SMSButton    int
}

func (l Lines) buttons() map[Button]int {
	return map[Button]int{
		ButtonLeft:   l.LeftButton,
		ButtonRight:  l.RightButton,
		ButtonHazard: l.HazardButton,
		ButtonSMS:    l.SMSButton,
	}
}
