package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "storefront.v1.CheckoutService"

const (
	methodCheckout              = "/" + ServiceName + "/Checkout"
	methodValidatePromotion     = "/" + ServiceName + "/ValidatePromotion"
	methodTransitionOrderStatus = "/" + ServiceName + "/TransitionOrderStatus"
	methodGetOrder              = "/" + ServiceName + "/GetOrder"
	methodGetOrderHistory       = "/" + ServiceName + "/GetOrderHistory"
)

// CheckoutServiceServer — серверная часть CheckoutService.
type CheckoutServiceServer interface {
	Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error)
	ValidatePromotion(context.Context, *ValidatePromotionRequest) (*ValidatePromotionResponse, error)
	TransitionOrderStatus(context.Context, *TransitionOrderStatusRequest) (*TransitionOrderStatusResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	GetOrderHistory(context.Context, *GetOrderHistoryRequest) (*GetOrderHistoryResponse, error)
}

// RegisterCheckoutServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterCheckoutServiceServer(registrar grpc.ServiceRegistrar, srv CheckoutServiceServer) {
	registrar.RegisterService(&CheckoutServiceDesc, srv)
}

// unaryHandler строит обработчик для метода с запросом Req.
func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(CheckoutServiceServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CheckoutServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CheckoutServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CheckoutServiceDesc описывает сервис для grpc.Server.
var CheckoutServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CheckoutServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Checkout",
			Handler:    unaryHandler(methodCheckout, CheckoutServiceServer.Checkout),
		},
		{
			MethodName: "ValidatePromotion",
			Handler:    unaryHandler(methodValidatePromotion, CheckoutServiceServer.ValidatePromotion),
		},
		{
			MethodName: "TransitionOrderStatus",
			Handler:    unaryHandler(methodTransitionOrderStatus, CheckoutServiceServer.TransitionOrderStatus),
		},
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler(methodGetOrder, CheckoutServiceServer.GetOrder),
		},
		{
			MethodName: "GetOrderHistory",
			Handler:    unaryHandler(methodGetOrderHistory, CheckoutServiceServer.GetOrderHistory),
		},
	},
	Metadata: "storefront/v1/checkout.json",
}

// CheckoutServiceClient — клиент CheckoutService поверх JSON-кодека.
type CheckoutServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCheckoutServiceClient создаёт клиента.
func NewCheckoutServiceClient(cc grpc.ClientConnInterface) *CheckoutServiceClient {
	return &CheckoutServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Checkout вызывает одноимённый метод.
func (c *CheckoutServiceClient) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*CheckoutResponse, error) {
	return invoke[CheckoutResponse](ctx, c.cc, methodCheckout, in, opts)
}

// ValidatePromotion вызывает одноимённый метод.
func (c *CheckoutServiceClient) ValidatePromotion(ctx context.Context, in *ValidatePromotionRequest, opts ...grpc.CallOption) (*ValidatePromotionResponse, error) {
	return invoke[ValidatePromotionResponse](ctx, c.cc, methodValidatePromotion, in, opts)
}

// TransitionOrderStatus вызывает одноимённый метод.
func (c *CheckoutServiceClient) TransitionOrderStatus(ctx context.Context, in *TransitionOrderStatusRequest, opts ...grpc.CallOption) (*TransitionOrderStatusResponse, error) {
	return invoke[TransitionOrderStatusResponse](ctx, c.cc, methodTransitionOrderStatus, in, opts)
}

// GetOrder вызывает одноимённый метод.
func (c *CheckoutServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, methodGetOrder, in, opts)
}

// GetOrderHistory вызывает одноимённый метод.
func (c *CheckoutServiceClient) GetOrderHistory(ctx context.Context, in *GetOrderHistoryRequest, opts ...grpc.CallOption) (*GetOrderHistoryResponse, error) {
	return invoke[GetOrderHistoryResponse](ctx, c.cc, methodGetOrderHistory, in, opts)
}
