package wimt

// APIResponse is the subset of the live status document needed to recover a route.
type APIResponse struct {
	TrainName          string        `json:"train_name"`
	SourceStation      string        `json:"source_station"`
	DestinationStation string        `json:"destination_station"`
	RunningStatus      string        `json:"running_status"`
	RunningStatusAlt   string        `json:"running status"`
	StartDate          string        `json:"start_date"`
	LastUpdateIsoDate  string        `json:"lastUpdateIsoDate"`
	DaysSchedule       []DaySchedule `json:"days_schedule"`
	Error              string        `json:"error"`
}

type DaySchedule struct {
	Sno         int     `json:"sno"`
	StationCode string  `json:"station_code"`
	Stops       bool    `json:"stops"`
	Distance    float64 `json:"distance"`
	Platform    string  `json:"platform"`
}
