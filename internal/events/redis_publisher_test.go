package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRedis struct {
	channel string
	message []byte
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisPublisher_PublishesJSON(t *testing.T) {
	client := &fakeRedis{}
	p := NewRedisPublisher(client, "")

	d := NewInMemoryDispatcher(zaptest.NewLogger(t))
	p.SubscribeAll(d)

	event := NewEvent(EventTicketEscalated, sampleTicket(), "system", time.Now(), TicketEscalatedPayload{Level: 1})
	require.NoError(t, d.Publish(context.Background(), event))

	assert.Equal(t, DefaultChannel, client.channel)
	var decoded Event
	require.NoError(t, json.Unmarshal(client.message, &decoded))
	assert.Equal(t, EventTicketEscalated, decoded.Type)
	assert.Equal(t, "TKT-20260101-0001", decoded.Ticket.TicketNumber)
}

func TestRedisPublisher_SurfacesErrors(t *testing.T) {
	p := NewRedisPublisher(&fakeRedis{err: errors.New("connection refused")}, "custom")
	err := p.Handle(context.Background(), NewEvent(EventTicketCreated, sampleTicket(), "u", time.Now(), nil))
	assert.Error(t, err)
}
