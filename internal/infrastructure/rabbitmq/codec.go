// Package rabbitmq carries import tasks between the process that starts a
// job and the workers that run it.
package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"koru/internal/domain/ingest"
)

const taskContentType = "application/json"

var errInvalidTask = errors.New("invalid import task")

func encodeTask(task ingest.ImportAccountTask) (amqp.Publishing, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to encode task: %w", err)
	}
	return amqp.Publishing{
		ContentType:  taskContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

func decodeTask(body []byte) (ingest.ImportAccountTask, error) {
	var task ingest.ImportAccountTask
	if err := json.Unmarshal(body, &task); err != nil {
		return ingest.ImportAccountTask{}, fmt.Errorf("%w: %v", errInvalidTask, err)
	}
	if task.AccountID == "" || task.ConnectionID == "" {
		return ingest.ImportAccountTask{}, fmt.Errorf("%w: account_id and connection_id are required", errInvalidTask)
	}
	return task, nil
}
