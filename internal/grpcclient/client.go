package grpcclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/spark-ai/internal/imageprocessor"
	"github.com/example/spark-ai/internal/logging"
)

// Method names served by the remote inference backend.
const (
	ServiceName           = "spark.ai.v1.ImageAI"
	EnhanceImageMethod    = "/" + ServiceName + "/EnhanceImage"
	GenerateContentMethod = "/" + ServiceName + "/GenerateContent"
)

// ImageRequest is the payload sent for both backend methods.
type ImageRequest struct {
	RequestID string `json:"request_id,omitempty"`
	ImageData []byte `json:"image_data"`
}

// Backend calls a remote inference service over gRPC. It satisfies both
// imageprocessor.Enhancer and imageprocessor.ContentGenerator.
type Backend struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
	logger *zap.Logger
}

// DialBackend connects to the inference service at addr.
func DialBackend(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Backend, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_backend", "", err)
		logger.Error("failed to dial inference backend", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	return &Backend{
		conn:   conn,
		health: grpc_health_v1.NewHealthClient(conn),
		logger: logger.Named("grpc_backend"),
	}, nil
}

// Enhance asks the backend to remove the image background.
func (b *Backend) Enhance(ctx context.Context, imageBytes []byte) (*imageprocessor.EnhancementResult, error) {
	requestID := logging.RequestID(ctx)
	var resp imageprocessor.EnhancementResult
	if err := b.conn.Invoke(ctx, EnhanceImageMethod, &ImageRequest{RequestID: requestID, ImageData: imageBytes}, &resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.enhance_image", requestID, err)
		b.logger.Error("enhance call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return &resp, nil
}

// GenerateContent asks the backend for listing copy.
func (b *Backend) GenerateContent(ctx context.Context, imageBytes []byte) (*imageprocessor.GeneratedContent, error) {
	requestID := logging.RequestID(ctx)
	var resp imageprocessor.GeneratedContent
	if err := b.conn.Invoke(ctx, GenerateContentMethod, &ImageRequest{RequestID: requestID, ImageData: imageBytes}, &resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.generate_content", requestID, err)
		b.logger.Error("content call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return &resp, nil
}

// Status reports the backend's health check state, e.g. "SERVING".
func (b *Backend) Status(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := b.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return "", logging.NewOperationError("grpcclient.health_check", "", err)
	}
	return resp.GetStatus().String(), nil
}

// Close releases the underlying connection.
func (b *Backend) Close() error {
	return b.conn.Close()
}
