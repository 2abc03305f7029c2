// Package master provides call-site constructors for a handful of
// kudu.master.MasterService RPCs. This is the "call-site front-end"
// external collaborator from spec.md section 1: declarative glue that
// builds request/response payloads and hands them to rpc.Proxy, not part
// of the core Connection/Proxy engineering itself.
package master

import (
	"context"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/phuhao00/kudugo/rpc"
)

const serviceName = "kudu.master.MasterService"

// PingRequest and PingResponse carry no fields; Ping exists only to
// verify connectivity and round-trip latency to a master.
type PingRequest struct{}

func (*PingRequest) Marshal() ([]byte, error) { return nil, nil }
func (*PingRequest) Unmarshal([]byte) error    { return nil }

type PingResponse struct{}

func (*PingResponse) Marshal() ([]byte, error) { return nil, nil }
func (*PingResponse) Unmarshal([]byte) error    { return nil }

// Ping sends a Ping RPC and returns its completion handle. Callers receive
// on the returned Call's Done channel and then type-assert Response back
// to *PingResponse.
func Ping(ctx context.Context, p *rpc.Proxy, deadline time.Time) (*rpc.Call, error) {
	return p.Send(ctx, serviceName, "Ping", &PingRequest{}, &PingResponse{}, rpc.RpcOptions{
		Deadline: deadline,
		FailFast: true,
	})
}

// ListTablesRequest optionally filters the returned table list by name
// prefix; an empty Filter lists every table.
type ListTablesRequest struct {
	Filter string
}

func (r *ListTablesRequest) Marshal() ([]byte, error) {
	var b []byte
	if r.Filter != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(r.Filter))
	}
	return b, nil
}

func (r *ListTablesRequest) Unmarshal(b []byte) error {
	*r = ListTablesRequest{}
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
			r.Filter = string(v)
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

// ListTablesResponse holds the returned table names.
type ListTablesResponse struct {
	Tables []string
}

func (r *ListTablesResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, t := range r.Tables {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(t))
	}
	return b, nil
}

func (r *ListTablesResponse) Unmarshal(b []byte) error {
	*r = ListTablesResponse{}
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
			r.Tables = append(r.Tables, string(v))
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

// ListTables lists tables known to the master, optionally filtered.
func ListTables(ctx context.Context, p *rpc.Proxy, deadline time.Time, filter string) (*rpc.Call, error) {
	return p.Send(ctx, serviceName, "ListTables", &ListTablesRequest{Filter: filter}, &ListTablesResponse{}, rpc.RpcOptions{
		Deadline: deadline,
		FailFast: true,
	})
}

// GetTableSchemaRequest names the table whose schema is being fetched.
type GetTableSchemaRequest struct {
	TableName string
}

func (r *GetTableSchemaRequest) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(r.TableName))
	return b, nil
}

func (r *GetTableSchemaRequest) Unmarshal(b []byte) error {
	*r = GetTableSchemaRequest{}
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
			r.TableName = string(v)
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

// GetTableSchemaResponse is a placeholder for the returned schema; the
// wire-level schema encoding is out of scope (see spec.md's Non-goals on
// row/value encoding).
type GetTableSchemaResponse struct {
	NumColumns uint32
}

func (r *GetTableSchemaResponse) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.NumColumns))
	return b, nil
}

func (r *GetTableSchemaResponse) Unmarshal(b []byte) error {
	*r = GetTableSchemaResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if num == 1 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.NumColumns = uint32(v)
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

// GetTableSchema fetches the schema for tableName.
func GetTableSchema(ctx context.Context, p *rpc.Proxy, deadline time.Time, tableName string) (*rpc.Call, error) {
	return p.Send(ctx, serviceName, "GetTableSchema", &GetTableSchemaRequest{TableName: tableName}, &GetTableSchemaResponse{}, rpc.RpcOptions{
		Deadline: deadline,
		FailFast: true,
	})
}

// CreateTableRequest names the table to create and its replication factor.
type CreateTableRequest struct {
	TableName   string
	NumReplicas uint32
}

func (r *CreateTableRequest) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(r.TableName))
	if r.NumReplicas != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.NumReplicas))
	}
	return b, nil
}

func (r *CreateTableRequest) Unmarshal(b []byte) error {
	*r = CreateTableRequest{}
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
			r.TableName = string(v)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.NumReplicas = uint32(v)
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

// CreateTableResponse is empty on success; errors surface through the
// Rpc's ErrorStatusPB path instead.
type CreateTableResponse struct{}

func (*CreateTableResponse) Marshal() ([]byte, error) { return nil, nil }
func (*CreateTableResponse) Unmarshal([]byte) error    { return nil }

// CreateTable creates tableName with numReplicas replicas. Unlike Ping,
// ListTables and GetTableSchema, this is not FailFast: a transport reset
// mid-call retries the request rather than failing it with the reset's error.
func CreateTable(ctx context.Context, p *rpc.Proxy, deadline time.Time, tableName string, numReplicas uint32) (*rpc.Call, error) {
	req := &CreateTableRequest{TableName: tableName, NumReplicas: numReplicas}
	return p.Send(ctx, serviceName, "CreateTable", req, &CreateTableResponse{}, rpc.RpcOptions{
		Deadline: deadline,
		FailFast: false,
	})
}
