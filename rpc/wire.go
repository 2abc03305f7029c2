package rpc

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// The types in this file are the minimal set of Kudu RPC header messages
// the Connection state machine needs to frame negotiation and steady-state
// traffic: RequestHeader, ResponseHeader, SaslMessagePB, ConnectionContextPB
// and ErrorStatusPB. They are hand-encoded against protowire's low-level
// wire primitives rather than generated by protoc, since no protoc
// toolchain is available; field numbers below are an internally consistent
// placeholder (see DESIGN.md) rather than a guarantee of byte-compatibility
// with upstream Kudu's rpc_header.proto.

// SaslState mirrors kudu_pb::rpc_header::SaslMessagePB_SaslState.
type SaslState int32

const (
	SaslStateNegotiate SaslState = 1
	SaslStateInitiate  SaslState = 2
	SaslStateSuccess   SaslState = 3
)

func appendInt32(dst []byte, num protowire.Number, v int32) []byte {
	dst = protowire.AppendTag(dst, num, protowire.VarintType)
	return protowire.AppendVarint(dst, uint64(int64(v)))
}

func appendUint32(dst []byte, num protowire.Number, v uint32) []byte {
	dst = protowire.AppendTag(dst, num, protowire.VarintType)
	return protowire.AppendVarint(dst, uint64(v))
}

func appendBool(dst []byte, num protowire.Number, v bool) []byte {
	dst = protowire.AppendTag(dst, num, protowire.VarintType)
	b := uint64(0)
	if v {
		b = 1
	}
	return protowire.AppendVarint(dst, b)
}

func appendBytes(dst []byte, num protowire.Number, v []byte) []byte {
	dst = protowire.AppendTag(dst, num, protowire.BytesType)
	return protowire.AppendBytes(dst, v)
}

func appendString(dst []byte, num protowire.Number, v string) []byte {
	return appendBytes(dst, num, []byte(v))
}

func appendEmbedded(dst []byte, num protowire.Number, body []byte) []byte {
	dst = protowire.AppendTag(dst, num, protowire.BytesType)
	return protowire.AppendBytes(dst, body)
}

// RemoteMethodPB identifies a service/method pair being invoked.
type RemoteMethodPB struct {
	ServiceName string
	MethodName  string
}

func (m *RemoteMethodPB) Marshal() ([]byte, error) {
	var b []byte
	if m.ServiceName != "" {
		b = appendString(b, 1, m.ServiceName)
	}
	if m.MethodName != "" {
		b = appendString(b, 2, m.MethodName)
	}
	return b, nil
}

func (m *RemoteMethodPB) Unmarshal(b []byte) error {
	*m = RemoteMethodPB{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ServiceName = string(v)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.MethodName = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// RequestHeader is written before every request body, regular or
// negotiation, per spec.md section 4.1/6.
type RequestHeader struct {
	CallID               int32
	RemoteMethod         RemoteMethodPB
	TimeoutMillis        uint32
	RequiredFeatureFlags []uint32
}

func (h *RequestHeader) Marshal() ([]byte, error) {
	var b []byte
	b = appendInt32(b, 1, h.CallID)
	if h.RemoteMethod.ServiceName != "" || h.RemoteMethod.MethodName != "" {
		rm, err := h.RemoteMethod.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendEmbedded(b, 2, rm)
	}
	if h.TimeoutMillis != 0 {
		b = appendUint32(b, 3, h.TimeoutMillis)
	}
	for _, f := range h.RequiredFeatureFlags {
		b = appendUint32(b, 4, f)
	}
	return b, nil
}

func (h *RequestHeader) Unmarshal(b []byte) error {
	*h = RequestHeader{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			h.CallID = int32(int64(v))
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := h.RemoteMethod.Unmarshal(v); err != nil {
				return err
			}
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			h.TimeoutMillis = uint32(v)
			b = b[n:]
		case 4:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			h.RequiredFeatureFlags = append(h.RequiredFeatureFlags, uint32(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// ResponseHeader is read before every response body.
type ResponseHeader struct {
	CallID         int32
	IsError        bool
	SidecarOffsets []uint32
}

func (h *ResponseHeader) Marshal() ([]byte, error) {
	var b []byte
	b = appendInt32(b, 1, h.CallID)
	if h.IsError {
		b = appendBool(b, 2, h.IsError)
	}
	for _, o := range h.SidecarOffsets {
		b = appendUint32(b, 3, o)
	}
	return b, nil
}

func (h *ResponseHeader) Unmarshal(b []byte) error {
	*h = ResponseHeader{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			h.CallID = int32(int64(v))
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			h.IsError = v != 0
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			h.SidecarOffsets = append(h.SidecarOffsets, uint32(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// SaslAuth is one offered or chosen authentication mechanism.
type SaslAuth struct {
	Mechanism string
}

// SaslMessagePB drives the NEGOTIATE/INITIATE/SUCCESS handshake.
type SaslMessagePB struct {
	State SaslState
	Token []byte
	Auths []SaslAuth
}

func (m *SaslMessagePB) Marshal() ([]byte, error) {
	var b []byte
	b = appendInt32(b, 1, int32(m.State))
	if len(m.Token) > 0 {
		b = appendBytes(b, 2, m.Token)
	}
	for _, a := range m.Auths {
		b = appendEmbedded(b, 3, appendString(nil, 1, a.Mechanism))
	}
	return b, nil
}

func (m *SaslMessagePB) Unmarshal(b []byte) error {
	*m = SaslMessagePB{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.State = SaslState(int32(int64(v)))
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Token = append([]byte(nil), v...)
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			var auth SaslAuth
			rest := v
			for len(rest) > 0 {
				anum, atyp, an := protowire.ConsumeTag(rest)
				if an < 0 {
					return protowire.ParseError(an)
				}
				rest = rest[an:]
				if anum == 1 {
					av, an := protowire.ConsumeBytes(rest)
					if an < 0 {
						return protowire.ParseError(an)
					}
					auth.Mechanism = string(av)
					rest = rest[an:]
				} else {
					an := protowire.ConsumeFieldValue(anum, atyp, rest)
					if an < 0 {
						return protowire.ParseError(an)
					}
					rest = rest[an:]
				}
			}
			m.Auths = append(m.Auths, auth)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// UserInformationPB carries the effective/real user pair sent with the
// connection context.
type UserInformationPB struct {
	EffectiveUser string
	RealUser      string
}

// ConnectionContextPB is sent once, immediately after SASL SUCCESS.
type ConnectionContextPB struct {
	UserInfo UserInformationPB
}

func (m *ConnectionContextPB) Marshal() ([]byte, error) {
	var ui []byte
	if m.UserInfo.EffectiveUser != "" {
		ui = appendString(ui, 1, m.UserInfo.EffectiveUser)
	}
	if m.UserInfo.RealUser != "" {
		ui = appendString(ui, 2, m.UserInfo.RealUser)
	}
	var b []byte
	if len(ui) > 0 {
		b = appendEmbedded(b, 1, ui)
	}
	return b, nil
}

func (m *ConnectionContextPB) Unmarshal(b []byte) error {
	*m = ConnectionContextPB{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if num == 1 {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			rest := v
			for len(rest) > 0 {
				unum, utyp, un := protowire.ConsumeTag(rest)
				if un < 0 {
					return protowire.ParseError(un)
				}
				rest = rest[un:]
				switch unum {
				case 1:
					uv, un := protowire.ConsumeBytes(rest)
					if un < 0 {
						return protowire.ParseError(un)
					}
					m.UserInfo.EffectiveUser = string(uv)
					rest = rest[un:]
				case 2:
					uv, un := protowire.ConsumeBytes(rest)
					if un < 0 {
						return protowire.ParseError(un)
					}
					m.UserInfo.RealUser = string(uv)
					rest = rest[un:]
				default:
					un := protowire.ConsumeFieldValue(unum, utyp, rest)
					if un < 0 {
						return protowire.ParseError(un)
					}
					rest = rest[un:]
				}
			}
			b = b[n:]
		} else {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// ErrorStatusPB is the body of an error response, per spec.md section 4.1.
type ErrorStatusPB struct {
	Code                    ErrorCode
	Message                 string
	UnsupportedFeatureFlags []uint32
}

func (m *ErrorStatusPB) Marshal() ([]byte, error) {
	var b []byte
	b = appendInt32(b, 1, int32(m.Code))
	if m.Message != "" {
		b = appendString(b, 2, m.Message)
	}
	for _, f := range m.UnsupportedFeatureFlags {
		b = appendUint32(b, 3, f)
	}
	return b, nil
}

func (m *ErrorStatusPB) Unmarshal(b []byte) error {
	*m = ErrorStatusPB{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Code = ErrorCode(int32(int64(v)))
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Message = string(v)
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.UnsupportedFeatureFlags = append(m.UnsupportedFeatureFlags, uint32(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// toRpcError converts a decoded ErrorStatusPB into an *RpcError.
func (m *ErrorStatusPB) toRpcError() *RpcError {
	return &RpcError{
		Code:                    m.Code,
		Message:                 m.Message,
		UnsupportedFeatureFlags: append([]uint32(nil), m.UnsupportedFeatureFlags...),
	}
}
