package remote

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// startServer serves every unary method with handle on an in-memory listener.
func startServer(t *testing.T, handle func(method string, req *structpb.Struct) (*structpb.Struct, error)) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ interface{}, stream grpc.ServerStream) error {
		method, _ := grpc.Method(stream.Context())
		req := &structpb.Struct{}
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		resp, err := handle(method, req)
		if err != nil {
			return err
		}
		return stream.SendMsg(resp)
	}))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewClient("passthrough:///bufnet", "",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPredictRoundTrip(t *testing.T) {
	var gotMethod string
	var gotRows int
	c := startServer(t, func(method string, req *structpb.Struct) (*structpb.Struct, error) {
		gotMethod = method
		rows := req.GetFields()["rows"].GetListValue().GetValues()
		gotRows = len(rows)
		labels := make([]interface{}, len(rows))
		confs := make([]interface{}, len(rows))
		for i, r := range rows {
			if r.GetListValue().GetValues()[0].GetNumberValue() > 5 {
				labels[i] = "DDoS"
			} else {
				labels[i] = 0.0
			}
			confs[i] = 0.9
		}
		return structpb.NewStruct(map[string]interface{}{"labels": labels, "confidences": confs})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	labels, confs, err := c.Predict(ctx, [][]float64{{1, 2}, {10, 2}})
	require.NoError(t, err)

	assert.Equal(t, DefaultMethod, gotMethod)
	assert.Equal(t, 2, gotRows)
	assert.Equal(t, []string{"0", "DDoS"}, labels)
	assert.Equal(t, []float64{0.9, 0.9}, confs)
	assert.True(t, c.ReportsConfidence())
}

func TestPredictErrors(t *testing.T) {
	c := startServer(t, func(_ string, req *structpb.Struct) (*structpb.Struct, error) {
		if len(req.GetFields()["rows"].GetListValue().GetValues()) == 1 {
			return nil, status.Error(codes.Unavailable, "model warming up")
		}
		return structpb.NewStruct(map[string]interface{}{"oops": true})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := c.Predict(ctx, [][]float64{{1}})
	assert.ErrorContains(t, err, "model warming up")

	_, _, err = c.Predict(ctx, [][]float64{{1}, {2}})
	assert.ErrorContains(t, err, "no labels")
}
