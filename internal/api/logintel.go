package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.insights.v1.LogIntelligence"

const (
	MethodSummarize         = "/" + ServiceName + "/Summarize"
	MethodAnalyzeErrors     = "/" + ServiceName + "/AnalyzeErrors"
	MethodInvestigate       = "/" + ServiceName + "/Investigate"
	MethodGroupLogs         = "/" + ServiceName + "/GroupLogs"
	MethodStatus            = "/" + ServiceName + "/Status"
	MethodResetAvailability = "/" + ServiceName + "/ResetAvailability"
	MethodTail              = "/" + ServiceName + "/Tail"
)

// LogQueryRequest selects the entries an operation works on. Start and End
// are RFC 3339 timestamps.
type LogQueryRequest struct {
	OrgID     string   `json:"orgId"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	StreamIDs []string `json:"streamIds,omitempty"`
	Level     string   `json:"level,omitempty"`
	Search    string   `json:"search,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

type SummarizeRequest struct {
	Query LogQueryRequest `json:"query"`
}

type AnalyzeErrorsRequest struct {
	Query LogQueryRequest `json:"query"`
}

// InvestigateRequest drills into one insight. Query is the scope the insight
// was produced from; the broader context is read from the same window
// without stream, level or search filters.
type InvestigateRequest struct {
	Insight models.Insight  `json:"insight"`
	Query   LogQueryRequest `json:"query"`
}

type GroupLogsRequest struct {
	Query LogQueryRequest `json:"query"`
}

type GroupLogsResponse struct {
	Groups []models.LogGroup `json:"groups"`
	Total  int               `json:"total"`
}

type StatusRequest struct{}

type ResetAvailabilityRequest struct{}

// StatusResponse reports whether remote generation is available and how many
// live-tail subscribers are attached.
type StatusResponse struct {
	Configured   bool    `json:"configured"`
	Subscribers  int     `json:"subscribers"`
	LatencyP95Ms float64 `json:"latencyP95Ms"`
}

// TailRequest opens a live tail for one organisation.
type TailRequest struct {
	OrgID     string   `json:"orgId"`
	StreamIDs []string `json:"streamIds,omitempty"`
	MinLevel  string   `json:"minLevel,omitempty"`
}

// TailFrame mirrors one server-sent event. Data is the raw JSON payload of
// the event; keep-alives carry only Comment.
type TailFrame struct {
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Comment string          `json:"comment,omitempty"`
}

// LogIntelligenceServer is the server API for the LogIntelligence service.
type LogIntelligenceServer interface {
	Summarize(context.Context, *SummarizeRequest) (*models.AssistantSummary, error)
	AnalyzeErrors(context.Context, *AnalyzeErrorsRequest) (*models.ErrorAnalysis, error)
	Investigate(context.Context, *InvestigateRequest) (*models.InvestigationResult, error)
	GroupLogs(context.Context, *GroupLogsRequest) (*GroupLogsResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	ResetAvailability(context.Context, *ResetAvailabilityRequest) (*StatusResponse, error)
	Tail(*TailRequest, TailStream) error
}

// TailStream is the server side of a Tail call.
type TailStream interface {
	Send(*TailFrame) error
	grpc.ServerStream
}

type tailStream struct {
	grpc.ServerStream
}

func (s *tailStream) Send(f *TailFrame) error {
	return s.ServerStream.SendMsg(f)
}

// RegisterLogIntelligenceServer attaches srv to s.
func RegisterLogIntelligenceServer(s grpc.ServiceRegistrar, srv LogIntelligenceServer) {
	s.RegisterService(&LogIntelligenceServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(LogIntelligenceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LogIntelligenceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LogIntelligenceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func tailHandler(srv any, stream grpc.ServerStream) error {
	in := new(TailRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LogIntelligenceServer).Tail(in, &tailStream{stream})
}

// LogIntelligenceServiceDesc describes the LogIntelligence service. Messages
// are JSON encoded; see JSONCodec.
var LogIntelligenceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LogIntelligenceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Summarize", Handler: unaryHandler(MethodSummarize, LogIntelligenceServer.Summarize)},
		{MethodName: "AnalyzeErrors", Handler: unaryHandler(MethodAnalyzeErrors, LogIntelligenceServer.AnalyzeErrors)},
		{MethodName: "Investigate", Handler: unaryHandler(MethodInvestigate, LogIntelligenceServer.Investigate)},
		{MethodName: "GroupLogs", Handler: unaryHandler(MethodGroupLogs, LogIntelligenceServer.GroupLogs)},
		{MethodName: "Status", Handler: unaryHandler(MethodStatus, LogIntelligenceServer.Status)},
		{MethodName: "ResetAvailability", Handler: unaryHandler(MethodResetAvailability, LogIntelligenceServer.ResetAvailability)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Tail", Handler: tailHandler, ServerStreams: true},
	},
}

// LogIntelligenceClient is a thin client for the LogIntelligence service.
type LogIntelligenceClient struct {
	cc grpc.ClientConnInterface
}

// NewLogIntelligenceClient wraps cc.
func NewLogIntelligenceClient(cc grpc.ClientConnInterface) *LogIntelligenceClient {
	return &LogIntelligenceClient{cc: cc}
}

func (c *LogIntelligenceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *LogIntelligenceClient) Summarize(ctx context.Context, in *SummarizeRequest, opts ...grpc.CallOption) (*models.AssistantSummary, error) {
	out := new(models.AssistantSummary)
	if err := c.invoke(ctx, MethodSummarize, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LogIntelligenceClient) AnalyzeErrors(ctx context.Context, in *AnalyzeErrorsRequest, opts ...grpc.CallOption) (*models.ErrorAnalysis, error) {
	out := new(models.ErrorAnalysis)
	if err := c.invoke(ctx, MethodAnalyzeErrors, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LogIntelligenceClient) Investigate(ctx context.Context, in *InvestigateRequest, opts ...grpc.CallOption) (*models.InvestigationResult, error) {
	out := new(models.InvestigationResult)
	if err := c.invoke(ctx, MethodInvestigate, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LogIntelligenceClient) GroupLogs(ctx context.Context, in *GroupLogsRequest, opts ...grpc.CallOption) (*GroupLogsResponse, error) {
	out := new(GroupLogsResponse)
	if err := c.invoke(ctx, MethodGroupLogs, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LogIntelligenceClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.invoke(ctx, MethodStatus, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LogIntelligenceClient) ResetAvailability(ctx context.Context, in *ResetAvailabilityRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.invoke(ctx, MethodResetAvailability, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// TailClient receives frames from an open Tail call.
type TailClient struct {
	grpc.ClientStream
}

// Recv blocks for the next frame.
func (t *TailClient) Recv() (*TailFrame, error) {
	f := new(TailFrame)
	if err := t.ClientStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Tail opens a live tail. Cancel ctx to close it.
func (c *LogIntelligenceClient) Tail(ctx context.Context, in *TailRequest, opts ...grpc.CallOption) (*TailClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	cs, err := c.cc.NewStream(ctx, &LogIntelligenceServiceDesc.Streams[0], MethodTail, opts...)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(in); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &TailClient{cs}, nil
}
