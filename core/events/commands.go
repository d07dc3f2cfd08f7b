package events

// GenreStop is the sentinel genre asking the music player to stop
// playback rather than switch to a genre literally named "stop".
const GenreStop = "stop"

// MusicCommand asks the music player to play a genre or stop.
type MusicCommand struct {
	Genre  string `json:"genre"`
	PlanID string `json:"plan_id,omitempty"`
	StepID string `json:"step_id,omitempty"`
}

func (MusicCommand) Topic() Topic { return TopicMusicCommand }

// Stop reports whether the command carries the stop sentinel.
func (e MusicCommand) Stop() bool { return e.Genre == GenreStop }

func (e MusicCommand) Payload() Payload {
	payload := Payload{"genre": e.Genre}
	if e.PlanID != "" {
		payload["plan_id"] = e.PlanID
	}
	if e.StepID != "" {
		payload["step_id"] = e.StepID
	}
	return payload
}

// ParseMusicCommand decodes a music.command payload.
func ParseMusicCommand(payload Payload) (MusicCommand, error) {
	return MusicCommand{
		Genre:  payload.stringField("genre"),
		PlanID: payload.stringField("plan_id"),
		StepID: payload.stringField("step_id"),
	}, nil
}

// EyeCommand asks the LED controller to show a pattern.
type EyeCommand struct {
	Pattern string `json:"pattern"`
	PlanID  string `json:"plan_id,omitempty"`
	StepID  string `json:"step_id,omitempty"`
}

func (EyeCommand) Topic() Topic { return TopicEyeCommand }

func (e EyeCommand) Payload() Payload {
	payload := Payload{"pattern": e.Pattern}
	if e.PlanID != "" {
		payload["plan_id"] = e.PlanID
	}
	if e.StepID != "" {
		payload["step_id"] = e.StepID
	}
	return payload
}

// MoveCommand asks the motion controller to run a motion sequence.
type MoveCommand struct {
	Motion string `json:"motion"`
	PlanID string `json:"plan_id,omitempty"`
	StepID string `json:"step_id,omitempty"`
}

func (MoveCommand) Topic() Topic { return TopicMoveCommand }

func (e MoveCommand) Payload() Payload {
	payload := Payload{"motion": e.Motion}
	if e.PlanID != "" {
		payload["plan_id"] = e.PlanID
	}
	if e.StepID != "" {
		payload["step_id"] = e.StepID
	}
	return payload
}
