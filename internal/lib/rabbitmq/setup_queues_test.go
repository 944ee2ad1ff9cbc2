package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetNotificationQueues(t *testing.T) {
	queues := GetNotificationQueues()

	assert.Len(t, queues, 2)
	keys := make(map[string]string)
	for _, q := range queues {
		keys[q.RoutingKey] = q.QueueName
	}
	assert.Equal(t, "notification.expiring", keys["expiring"])
	assert.Equal(t, "notification.revoked", keys["revoked"])
}
