// file: cmd/server/service.go
package main

import (
	"github.com/cockroachdb/errors"

	"github.com/dkoosis/goarpc/internal/jsonrpc"
	"github.com/dkoosis/goarpc/internal/logging"
	"github.com/dkoosis/goarpc/internal/procedure"
	"github.com/dkoosis/goarpc/internal/rpcservice"
)

// buildArithRegistry assembles the example "Arith" service: the minimal
// demonstration service exercised by this binary and by the client example
// in cmd/client. It is not part of the framework proper.
func buildArithRegistry(log logging.Logger) (*rpcservice.Registry, error) {
	add, err := procedure.NewReturn(func(req *jsonrpc.Request, done procedure.DoneFunc) {
		var args []float64
		if err := req.ParseParams(&args); err != nil {
			done(nil, err)
			return
		}
		done(args[0]+args[1], nil)
	}, procedure.Param{Name: "lhs", Type: procedure.TypeNumber}, procedure.Param{Name: "rhs", Type: procedure.TypeNumber})
	if err != nil {
		return nil, errors.Wrap(err, "building Arith.Add")
	}

	sub, err := procedure.NewReturn(func(req *jsonrpc.Request, done procedure.DoneFunc) {
		var args []float64
		if err := req.ParseParams(&args); err != nil {
			done(nil, err)
			return
		}
		done(args[0]-args[1], nil)
	}, procedure.Param{Name: "lhs", Type: procedure.TypeNumber}, procedure.Param{Name: "rhs", Type: procedure.TypeNumber})
	if err != nil {
		return nil, errors.Wrap(err, "building Arith.Sub")
	}

	mul, err := procedure.NewReturn(func(req *jsonrpc.Request, done procedure.DoneFunc) {
		var args []float64
		if err := req.ParseParams(&args); err != nil {
			done(nil, err)
			return
		}
		done(args[0]*args[1], nil)
	}, procedure.Param{Name: "lhs", Type: procedure.TypeNumber}, procedure.Param{Name: "rhs", Type: procedure.TypeNumber})
	if err != nil {
		return nil, errors.Wrap(err, "building Arith.Mul")
	}

	div, err := procedure.NewReturn(func(req *jsonrpc.Request, done procedure.DoneFunc) {
		var args []float64
		if err := req.ParseParams(&args); err != nil {
			done(nil, err)
			return
		}
		if args[1] == 0 {
			done(nil, errors.New("division by zero"))
			return
		}
		done(args[0]/args[1], nil)
	}, procedure.Param{Name: "lhs", Type: procedure.TypeNumber}, procedure.Param{Name: "rhs", Type: procedure.TypeNumber})
	if err != nil {
		return nil, errors.Wrap(err, "building Arith.Div")
	}

	logNote, err := procedure.NewNotify(func(note *jsonrpc.Notification) error {
		var msg string
		if err := note.ParseParams(&msg); err != nil {
			return err
		}
		log.Info("Arith.Log", "message", msg)
		return nil
	}, procedure.Param{Name: "msg", Type: procedure.TypeString})
	if err != nil {
		return nil, errors.Wrap(err, "building Arith.Log")
	}

	svc := rpcservice.NewService("Arith")
	if err := svc.AddReturn("Add", add); err != nil {
		return nil, err
	}
	if err := svc.AddReturn("Sub", sub); err != nil {
		return nil, err
	}
	if err := svc.AddReturn("Mul", mul); err != nil {
		return nil, err
	}
	if err := svc.AddReturn("Div", div); err != nil {
		return nil, err
	}
	if err := svc.AddNotify("Log", logNote); err != nil {
		return nil, err
	}

	reg := rpcservice.NewRegistry()
	if err := reg.AddService(svc); err != nil {
		return nil, err
	}
	return reg, nil
}
