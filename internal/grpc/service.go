package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name
const ServiceName = "routeanalysis.v1.RouteAnalysisService"

// Full method names
const (
	AnalyzeRouteMethod = "/" + ServiceName + "/AnalyzeRoute"
	GetJobStatusMethod = "/" + ServiceName + "/GetJobStatus"
	ListJobsMethod     = "/" + ServiceName + "/ListJobs"
	ListRoutesMethod   = "/" + ServiceName + "/ListRoutes"
)

// RouteAnalysisServiceServer is the server API for RouteAnalysisService.
// Requests and responses are protobuf well-known types so the service needs
// no generated code.
type RouteAnalysisServiceServer interface {
	// AnalyzeRoute queues a GPX file for analysis: {file_path, region}
	AnalyzeRoute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJobStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// ListJobs pages through jobs: {status, limit, offset}
	ListJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListRoutes returns persisted route metadata: {region}
	ListRoutes(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRouteAnalysisServiceServer registers srv on s
func RegisterRouteAnalysisServiceServer(s grpc.ServiceRegistrar, srv RouteAnalysisServiceServer) {
	s.RegisterService(&RouteAnalysisServiceDesc, srv)
}

// RouteAnalysisServiceDesc is the grpc.ServiceDesc for RouteAnalysisService
var RouteAnalysisServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RouteAnalysisServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AnalyzeRoute", Handler: analyzeRouteHandler},
		{MethodName: "GetJobStatus", Handler: getJobStatusHandler},
		{MethodName: "ListJobs", Handler: listJobsHandler},
		{MethodName: "ListRoutes", Handler: listRoutesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "routeanalysis/v1/route_analysis.proto",
}

func analyzeRouteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RouteAnalysisServiceServer).AnalyzeRoute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AnalyzeRouteMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RouteAnalysisServiceServer).AnalyzeRoute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getJobStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RouteAnalysisServiceServer).GetJobStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetJobStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RouteAnalysisServiceServer).GetJobStatus(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listJobsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RouteAnalysisServiceServer).ListJobs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListJobsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RouteAnalysisServiceServer).ListJobs(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listRoutesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RouteAnalysisServiceServer).ListRoutes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListRoutesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RouteAnalysisServiceServer).ListRoutes(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is a thin RouteAnalysisService client
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// AnalyzeRoute queues filePath for analysis and returns the job ID
func (c *Client) AnalyzeRoute(ctx context.Context, filePath, region string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]interface{}{
		"file_path": filePath,
		"region":    region,
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AnalyzeRouteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetJobStatus fetches a job snapshot
func (c *Client) GetJobStatus(ctx context.Context, jobID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetJobStatusMethod, wrapperspb.String(jobID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListJobs pages through jobs, optionally filtered by status
func (c *Client) ListJobs(ctx context.Context, status string, limit, offset int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]interface{}{
		"status": status,
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListJobsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRoutes returns persisted routes, optionally filtered by region
func (c *Client) ListRoutes(ctx context.Context, region string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"region": region})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListRoutesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
