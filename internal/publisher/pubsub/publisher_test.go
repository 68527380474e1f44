package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
	publisher "github.com/JakeFAU/imagesize-intrinsic/internal/publisher/pubsub"
)

func TestPublisherPublishesRunTotals(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "imgsize-runs")
	require.NoError(t, err)

	pub := publisher.New(topic)
	totals := imgsize.RunTotals{Pages: 2, Images: 5, Wrote: 3, Cached: 2}
	id, err := pub.Publish(ctx, "run.finalized", totals)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "run.finalized", msgs[0].Attributes["event"])
	var got imgsize.RunTotals
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, totals, got)

	require.NoError(t, pub.Close())
}

func TestPublisherWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := publisher.New(nil).Publish(context.Background(), "run.finalized", struct{}{})
	require.Error(t, err)
	require.NoError(t, publisher.New(nil).Close())
}
