package docstate

import "encoding/json"

func marshalStateChange(ev StateChange) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStateChange(payload string) (StateChange, error) {
	var ev StateChange
	err := json.Unmarshal([]byte(payload), &ev)
	return ev, err
}
