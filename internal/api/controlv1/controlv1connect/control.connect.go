// Package controlv1connect holds the Connect client and handler of the engine
// control service.
package controlv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	controlv1 "github.com/osa030/autodj/internal/api/controlv1"
)

// ControlServiceName is the fully-qualified name of the ControlService service.
const ControlServiceName = "autodj.control.v1.ControlService"

// Procedure names of the ControlService.
const (
	ControlServiceStartProcedure           = "/autodj.control.v1.ControlService/Start"
	ControlServiceStopProcedure            = "/autodj.control.v1.ControlService/Stop"
	ControlServiceSkipProcedure            = "/autodj.control.v1.ControlService/Skip"
	ControlServiceSetMixIntervalProcedure  = "/autodj.control.v1.ControlService/SetMixInterval"
	ControlServiceSetFadeDurationProcedure = "/autodj.control.v1.ControlService/SetFadeDuration"
	ControlServiceSetTargetEnergyProcedure = "/autodj.control.v1.ControlService/SetTargetEnergy"
	ControlServiceGetStatusProcedure       = "/autodj.control.v1.ControlService/GetStatus"
	ControlServiceSubscribeEventsProcedure = "/autodj.control.v1.ControlService/SubscribeEvents"
)

// ControlServiceClient is a client for the ControlService.
type ControlServiceClient interface {
	Start(context.Context, *connect.Request[controlv1.StartRequest]) (*connect.Response[controlv1.StatusResponse], error)
	Stop(context.Context, *connect.Request[controlv1.StopRequest]) (*connect.Response[controlv1.StatusResponse], error)
	Skip(context.Context, *connect.Request[controlv1.SkipRequest]) (*connect.Response[controlv1.StatusResponse], error)
	SetMixInterval(context.Context, *connect.Request[controlv1.SetMixIntervalRequest]) (*connect.Response[controlv1.StatusResponse], error)
	SetFadeDuration(context.Context, *connect.Request[controlv1.SetFadeDurationRequest]) (*connect.Response[controlv1.StatusResponse], error)
	SetTargetEnergy(context.Context, *connect.Request[controlv1.SetTargetEnergyRequest]) (*connect.Response[controlv1.StatusResponse], error)
	GetStatus(context.Context, *connect.Request[controlv1.GetStatusRequest]) (*connect.Response[controlv1.StatusResponse], error)
	SubscribeEvents(context.Context, *connect.Request[controlv1.SubscribeEventsRequest]) (*connect.ServerStreamForClient[controlv1.Event], error)
}

// NewControlServiceClient constructs a client for the ControlService. The
// JSON codec is always installed; baseURL is the server root, e.g.
// http://localhost:8080.
func NewControlServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) ControlServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(controlv1.Codec{})}, opts...)
	return &controlServiceClient{
		start:           connect.NewClient[controlv1.StartRequest, controlv1.StatusResponse](httpClient, baseURL+ControlServiceStartProcedure, opts...),
		stop:            connect.NewClient[controlv1.StopRequest, controlv1.StatusResponse](httpClient, baseURL+ControlServiceStopProcedure, opts...),
		skip:            connect.NewClient[controlv1.SkipRequest, controlv1.StatusResponse](httpClient, baseURL+ControlServiceSkipProcedure, opts...),
		setMixInterval:  connect.NewClient[controlv1.SetMixIntervalRequest, controlv1.StatusResponse](httpClient, baseURL+ControlServiceSetMixIntervalProcedure, opts...),
		setFadeDuration: connect.NewClient[controlv1.SetFadeDurationRequest, controlv1.StatusResponse](httpClient, baseURL+ControlServiceSetFadeDurationProcedure, opts...),
		setTargetEnergy: connect.NewClient[controlv1.SetTargetEnergyRequest, controlv1.StatusResponse](httpClient, baseURL+ControlServiceSetTargetEnergyProcedure, opts...),
		getStatus:       connect.NewClient[controlv1.GetStatusRequest, controlv1.StatusResponse](httpClient, baseURL+ControlServiceGetStatusProcedure, opts...),
		subscribeEvents: connect.NewClient[controlv1.SubscribeEventsRequest, controlv1.Event](httpClient, baseURL+ControlServiceSubscribeEventsProcedure, opts...),
	}
}

type controlServiceClient struct {
	start           *connect.Client[controlv1.StartRequest, controlv1.StatusResponse]
	stop            *connect.Client[controlv1.StopRequest, controlv1.StatusResponse]
	skip            *connect.Client[controlv1.SkipRequest, controlv1.StatusResponse]
	setMixInterval  *connect.Client[controlv1.SetMixIntervalRequest, controlv1.StatusResponse]
	setFadeDuration *connect.Client[controlv1.SetFadeDurationRequest, controlv1.StatusResponse]
	setTargetEnergy *connect.Client[controlv1.SetTargetEnergyRequest, controlv1.StatusResponse]
	getStatus       *connect.Client[controlv1.GetStatusRequest, controlv1.StatusResponse]
	subscribeEvents *connect.Client[controlv1.SubscribeEventsRequest, controlv1.Event]
}

func (c *controlServiceClient) Start(ctx context.Context, req *connect.Request[controlv1.StartRequest]) (*connect.Response[controlv1.StatusResponse], error) {
	return c.start.CallUnary(ctx, req)
}

func (c *controlServiceClient) Stop(ctx context.Context, req *connect.Request[controlv1.StopRequest]) (*connect.Response[controlv1.StatusResponse], error) {
	return c.stop.CallUnary(ctx, req)
}

func (c *controlServiceClient) Skip(ctx context.Context, req *connect.Request[controlv1.SkipRequest]) (*connect.Response[controlv1.StatusResponse], error) {
	return c.skip.CallUnary(ctx, req)
}

func (c *controlServiceClient) SetMixInterval(ctx context.Context, req *connect.Request[controlv1.SetMixIntervalRequest]) (*connect.Response[controlv1.StatusResponse], error) {
	return c.setMixInterval.CallUnary(ctx, req)
}

func (c *controlServiceClient) SetFadeDuration(ctx context.Context, req *connect.Request[controlv1.SetFadeDurationRequest]) (*connect.Response[controlv1.StatusResponse], error) {
	return c.setFadeDuration.CallUnary(ctx, req)
}

func (c *controlServiceClient) SetTargetEnergy(ctx context.Context, req *connect.Request[controlv1.SetTargetEnergyRequest]) (*connect.Response[controlv1.StatusResponse], error) {
	return c.setTargetEnergy.CallUnary(ctx, req)
}

func (c *controlServiceClient) GetStatus(ctx context.Context, req *connect.Request[controlv1.GetStatusRequest]) (*connect.Response[controlv1.StatusResponse], error) {
	return c.getStatus.CallUnary(ctx, req)
}

func (c *controlServiceClient) SubscribeEvents(ctx context.Context, req *connect.Request[controlv1.SubscribeEventsRequest]) (*connect.ServerStreamForClient[controlv1.Event], error) {
	return c.subscribeEvents.CallServerStream(ctx, req)
}

// ControlServiceHandler is implemented by the ControlService server.
type ControlServiceHandler interface {
	Start(context.Context, *connect.Request[controlv1.StartRequest]) (*connect.Response[controlv1.StatusResponse], error)
	Stop(context.Context, *connect.Request[controlv1.StopRequest]) (*connect.Response[controlv1.StatusResponse], error)
	Skip(context.Context, *connect.Request[controlv1.SkipRequest]) (*connect.Response[controlv1.StatusResponse], error)
	SetMixInterval(context.Context, *connect.Request[controlv1.SetMixIntervalRequest]) (*connect.Response[controlv1.StatusResponse], error)
	SetFadeDuration(context.Context, *connect.Request[controlv1.SetFadeDurationRequest]) (*connect.Response[controlv1.StatusResponse], error)
	SetTargetEnergy(context.Context, *connect.Request[controlv1.SetTargetEnergyRequest]) (*connect.Response[controlv1.StatusResponse], error)
	GetStatus(context.Context, *connect.Request[controlv1.GetStatusRequest]) (*connect.Response[controlv1.StatusResponse], error)
	SubscribeEvents(context.Context, *connect.Request[controlv1.SubscribeEventsRequest], *connect.ServerStream[controlv1.Event]) error
}

// NewControlServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewControlServiceHandler(svc ControlServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(controlv1.Codec{})}, opts...)
	handlers := map[string]http.Handler{
		ControlServiceStartProcedure:           connect.NewUnaryHandler(ControlServiceStartProcedure, svc.Start, opts...),
		ControlServiceStopProcedure:            connect.NewUnaryHandler(ControlServiceStopProcedure, svc.Stop, opts...),
		ControlServiceSkipProcedure:            connect.NewUnaryHandler(ControlServiceSkipProcedure, svc.Skip, opts...),
		ControlServiceSetMixIntervalProcedure:  connect.NewUnaryHandler(ControlServiceSetMixIntervalProcedure, svc.SetMixInterval, opts...),
		ControlServiceSetFadeDurationProcedure: connect.NewUnaryHandler(ControlServiceSetFadeDurationProcedure, svc.SetFadeDuration, opts...),
		ControlServiceSetTargetEnergyProcedure: connect.NewUnaryHandler(ControlServiceSetTargetEnergyProcedure, svc.SetTargetEnergy, opts...),
		ControlServiceGetStatusProcedure:       connect.NewUnaryHandler(ControlServiceGetStatusProcedure, svc.GetStatus, opts...),
		ControlServiceSubscribeEventsProcedure: connect.NewServerStreamHandler(ControlServiceSubscribeEventsProcedure, svc.SubscribeEvents, opts...),
	}
	return "/" + ControlServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}
