package grpc

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/supervisor"
)

const (
	// ServiceName is the fully qualified telemetry service name
	ServiceName = "vehicle.v1.Telemetry"

	// GetSnapshotMethod is the full method path of GetSnapshot
	GetSnapshotMethod = "/" + ServiceName + "/GetSnapshot"
)

// TelemetryServer is the server API for the read-only telemetry service
type TelemetryServer interface {
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// TelemetryServiceDesc describes the telemetry service. The messages are
// well-known types, so no generated code is needed.
var TelemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetSnapshot",
			Handler:    getSnapshotHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vehicle/v1/telemetry.proto",
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetSnapshotMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryServer).GetSnapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterTelemetryServer registers the telemetry service on s
func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&TelemetryServiceDesc, srv)
}

// SessionStatus is the part of the supervisor the telemetry service reads
type SessionStatus interface {
	State() supervisor.State
	SessionID() string
	Launched() int
}

// unavailableReporter is implemented by stores that remember skipped ranging cycles
type unavailableReporter interface {
	Unavailable() (at time.Time, reason error)
}

// reportCounter is implemented by stores that count every report received
type reportCounter interface {
	Counts() (luminosity, distance, unavailable int64)
}

// TelemetryHandler implements the gRPC telemetry service
type TelemetryHandler struct {
	readings domain.SnapshotReader
	power    *domain.PowerState
	status   SessionStatus
}

// NewTelemetryHandler creates a new gRPC handler
func NewTelemetryHandler(readings domain.SnapshotReader, power *domain.PowerState, status SessionStatus) *TelemetryHandler {
	return &TelemetryHandler{
		readings: readings,
		power:    power,
		status:   status,
	}
}

// GetSnapshot returns the power state, the session and the latest readings
func (h *TelemetryHandler) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log.Debug().Msg("GetSnapshot called")

	fields := map[string]any{
		"power":             h.power.String(),
		"supervisor_state":  h.status.State().String(),
		"session_id":        h.status.SessionID(),
		"sessions_launched": h.status.Launched(),
	}

	snap := h.readings.Latest(ctx)
	if l := snap.Luminosity; l != nil {
		fields["luminosity_count"] = l.Count
		fields["luminosity_level"] = 1 - l.Normalized()
		fields["luminosity_at"] = l.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if d := snap.Distance; d != nil {
		fields["distance_cm"] = d.Centimeters
		fields["distance_at"] = d.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if u, ok := h.readings.(unavailableReporter); ok {
		if at, reason := u.Unavailable(); reason != nil {
			fields["distance_unavailable"] = reason.Error()
			fields["distance_unavailable_at"] = at.UTC().Format(time.RFC3339Nano)
		}
	}
	if c, ok := h.readings.(reportCounter); ok {
		luminosity, distance, unavailable := c.Counts()
		fields["luminosity_reports"] = luminosity
		fields["distance_reports"] = distance
		fields["distance_unavailable_reports"] = unavailable
	}

	resp, err := structpb.NewStruct(fields)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode snapshot")
		return nil, status.Error(codes.Internal, "failed to encode snapshot")
	}
	return resp, nil
}

// TelemetryClient calls the telemetry service over an existing connection
type TelemetryClient struct {
	cc grpc.ClientConnInterface
}

// NewTelemetryClient creates a client on cc
func NewTelemetryClient(cc grpc.ClientConnInterface) *TelemetryClient {
	return &TelemetryClient{cc: cc}
}

// GetSnapshot fetches the current snapshot
func (c *TelemetryClient) GetSnapshot(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetSnapshotMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
