package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"

	svcErr "github.com/oggyb/muzz-daily/internal/errors"
)

// Services speak google.protobuf.Struct on the wire. Handlers work with
// plain Go request/response types; Decode and Encode convert through the
// JSON form of the Struct.

// Decode copies a Struct into out. Unknown fields are rejected.
func Decode(in *structpb.Struct, out any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// Encode converts a JSON-serialisable value into a Struct. A nil value
// encodes as an empty Struct.
func Encode(v any) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	if bytes.Equal(raw, []byte("null")) {
		return out, nil
	}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("response is not an object: %w", err)
	}
	return out, nil
}

const structType = ".google.protobuf.Struct"

// Builder assembles a grpc.ServiceDesc out of typed unary handlers, and
// the proto file describing it for reflection.
type Builder struct {
	desc grpc.ServiceDesc
	file *descriptorpb.FileDescriptorProto
}

// NewService starts a service named like "muzz.daily.v1.DailyService".
// Its file is "muzz/daily/v1/dailyservice.proto".
func NewService(name string) *Builder {
	pkg, svc := name, name
	if i := strings.LastIndex(name, "."); i >= 0 {
		pkg, svc = name[:i], name[i+1:]
	}
	return &Builder{
		desc: grpc.ServiceDesc{
			ServiceName: name,
			HandlerType: (*any)(nil),
		},
		file: &descriptorpb.FileDescriptorProto{
			Name:       proto.String(strings.ReplaceAll(pkg, ".", "/") + "/" + strings.ToLower(svc) + ".proto"),
			Package:    proto.String(pkg),
			Dependency: []string{structpb.File_google_protobuf_struct_proto.Path()},
			Service:    []*descriptorpb.ServiceDescriptorProto{{Name: proto.String(svc)}},
			Syntax:     proto.String("proto3"),
		},
	}
}

// Desc returns the finished descriptor. Metadata carries the service's
// protoreflect.FileDescriptor; New hands it to the reflection service.
func (b *Builder) Desc() *grpc.ServiceDesc {
	fd, err := b.FileDescriptor()
	if err != nil {
		panic(fmt.Sprintf("describe %s: %v", b.desc.ServiceName, err))
	}
	d := b.desc
	d.Methods = append([]grpc.MethodDesc(nil), b.desc.Methods...)
	d.Metadata = fd
	return &d
}

// FileDescriptor builds the proto file of the service: every method takes
// and returns google.protobuf.Struct.
func (b *Builder) FileDescriptor() (protoreflect.FileDescriptor, error) {
	file := proto.Clone(b.file).(*descriptorpb.FileDescriptorProto)
	return protodesc.NewFile(file, protoregistry.GlobalFiles)
}

// Handle adds a unary method. Malformed requests fail with InvalidArgument
// before fn runs; errors from fn are left for the interceptor to map.
func Handle[Req, Resp any](b *Builder, method string, fn func(ctx context.Context, req *Req) (*Resp, error)) {
	fullMethod := "/" + b.desc.ServiceName + "/" + method

	call := func(ctx context.Context, in any) (any, error) {
		var req Req
		if err := Decode(in.(*structpb.Struct), &req); err != nil {
			return nil, svcErr.InvalidArgument("malformed request: " + err.Error())
		}
		resp, err := fn(ctx, &req)
		if err != nil {
			return nil, err
		}
		return Encode(resp)
	}

	b.file.Service[0].Method = append(b.file.Service[0].Method, &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(method),
		InputType:  proto.String(structType),
		OutputType: proto.String(structType),
	})
	b.desc.Methods = append(b.desc.Methods, grpc.MethodDesc{
		MethodName: method,
		Handler: func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{FullMethod: fullMethod}, call)
		},
	})
}

// Invoke calls a Struct-speaking method and decodes the reply into Resp.
func Invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, fullMethod string, req any, opts ...grpc.CallOption) (*Resp, error) {
	in, err := Encode(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, fullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	var resp Resp
	if err := Decode(out, &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &resp, nil
}
