// Package exchangerpc exposes barrier-synchronised exchanges over gRPC. The
// service is described by hand and carried with a JSON codec, so there is no
// generated code to keep in sync.
package exchangerpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "exchange.v1.ExchangeService"

// ExchangeServer is the server API for the exchange service.
type ExchangeServer interface {
	ListDatasets(context.Context, *emptypb.Empty) (*ListDatasetsResponse, error)
	Init(context.Context, *InitRequest) (*InitResponse, error)
	RegisterSource(context.Context, *RegisterSourceRequest) (*RegisterSourceResponse, error)
	SendOrder(context.Context, *SendOrderRequest) (*SendOrderResponse, error)
	DeleteOrder(context.Context, *DeleteOrderRequest) (*DeleteOrderResponse, error)
	FetchQuotes(context.Context, *FetchQuotesRequest) (*FetchQuotesResponse, error)
	FetchTrades(context.Context, *FetchTradesRequest) (*FetchTradesResponse, error)
	Tick(context.Context, *TickRequest) (*TickResponse, error)
}

// RegisterExchangeServer registers srv on s.
func RegisterExchangeServer(s grpc.ServiceRegistrar, srv ExchangeServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the exchange service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExchangeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListDatasets", ExchangeServer.ListDatasets),
		unary("Init", ExchangeServer.Init),
		unary("RegisterSource", ExchangeServer.RegisterSource),
		unary("SendOrder", ExchangeServer.SendOrder),
		unary("DeleteOrder", ExchangeServer.DeleteOrder),
		unary("FetchQuotes", ExchangeServer.FetchQuotes),
		unary("FetchTrades", ExchangeServer.FetchTrades),
		unary("Tick", ExchangeServer.Tick),
	},
	Streams: []grpc.StreamDesc{},
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(ExchangeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ExchangeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ExchangeServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
