package quality

// Row is one line of a quality table.
type Row struct {
	Clients int  `json:"clients" example:"3" doc:"Connected viewers"`
	Value   int  `json:"value" example:"5500" doc:"Control value applied to the encoder"`
	Clamped bool `json:"clamped,omitempty" doc:"Value was clamped to the bounds or the last tier"`
}

// Table lists the targets for 1..maxClients viewers.
func (s Stepper) Table(maxClients int) []Row {
	if maxClients < 1 {
		return nil
	}
	rows := make([]Row, 0, maxClients)
	for n := 1; n <= maxClients; n++ {
		v, clamped := s.Target(n)
		rows = append(rows, Row{Clients: n, Value: v, Clamped: clamped})
	}
	return rows
}
