package dispatch

import (
	"encoding/json"
	"fmt"
	"time"
)

// payloadField is the single stream entry field carrying the JSON-encoded task.
const payloadField = "payload"

// Task asks a worker to generate the assistant reply for one user message.
// Delivery is at-least-once; workers de-duplicate on SourceMessageID.
type Task struct {
	TaskID          string    `json:"task_id"`
	ChatroomID      int64     `json:"chatroom_id"`
	SourceMessageID int64     `json:"source_message_id"`
	Content         string    `json:"content"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
}

func (t Task) encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeTask(values map[string]any) (Task, error) {
	raw, ok := values[payloadField].(string)
	if !ok {
		return Task{}, fmt.Errorf("stream entry has no %q field", payloadField)
	}
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	if t.SourceMessageID == 0 || t.ChatroomID == 0 {
		return Task{}, fmt.Errorf("task %q is missing ids", t.TaskID)
	}
	return t, nil
}
