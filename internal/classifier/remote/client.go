package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"FlowGuard/internal/config"
	"FlowGuard/internal/factory"
	"FlowGuard/internal/model"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultMethod is the unary method invoked when a variant names none.
const DefaultMethod = "/flowguard.v1.Classifier/Predict"

func init() {
	factory.RegisterBackend("grpc", func(def config.VariantDef, _ time.Duration) (model.Classifier, error) {
		if def.GRPC.Addr == "" {
			return nil, errors.New("grpc backend requires grpc.addr")
		}
		return NewClient(def.GRPC.Addr, def.GRPC.Method,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	})
}

// Client calls a remote model server. Requests and responses are
// google.protobuf.Struct messages:
//
//	request:  {"rows": [[f1, f2, ...], ...]}
//	response: {"labels": [...], "confidences": [...]}
//
// Labels may be strings or numeric class indices; confidences are optional.
type Client struct {
	conn   *grpc.ClientConn
	method string
}

// NewClient creates a client for target. The connection is established lazily.
func NewClient(target, method string, opts ...grpc.DialOption) (*Client, error) {
	if method == "" {
		method = DefaultMethod
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", target, err)
	}
	return &Client{conn: conn, method: method}, nil
}

// Predict sends rows to the model server.
func (c *Client) Predict(ctx context.Context, rows [][]float64) ([]string, []float64, error) {
	req, err := encodeRows(rows)
	if err != nil {
		return nil, nil, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, c.method, req, resp); err != nil {
		return nil, nil, fmt.Errorf("predict call failed: %w", err)
	}
	return decodeResponse(resp)
}

// ReportsConfidence is true; responses without confidences degrade to none.
func (c *Client) ReportsConfidence() bool { return true }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func encodeRows(rows [][]float64) (*structpb.Struct, error) {
	list := make([]interface{}, len(rows))
	for i, row := range rows {
		vals := make([]interface{}, len(row))
		for j, v := range row {
			vals[j] = v
		}
		list[i] = vals
	}
	req, err := structpb.NewStruct(map[string]interface{}{"rows": list})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}
	return req, nil
}

func decodeResponse(resp *structpb.Struct) ([]string, []float64, error) {
	labelsVal, ok := resp.GetFields()["labels"]
	if !ok || labelsVal.GetListValue() == nil {
		return nil, nil, errors.New("response has no labels list")
	}
	raw := labelsVal.GetListValue().GetValues()
	labels := make([]string, len(raw))
	for i, v := range raw {
		switch k := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			labels[i] = k.StringValue
		case *structpb.Value_NumberValue:
			labels[i] = strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
		default:
			return nil, nil, fmt.Errorf("label %d has unsupported type %T", i, k)
		}
	}

	var confs []float64
	if cv, ok := resp.GetFields()["confidences"]; ok && cv.GetListValue() != nil {
		for _, v := range cv.GetListValue().GetValues() {
			confs = append(confs, v.GetNumberValue())
		}
	}
	return labels, confs, nil
}
