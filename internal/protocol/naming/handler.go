package naming

import (
	"context"
	"errors"
	"time"

	"github.com/corfid/namingd/internal/logger"
	"github.com/corfid/namingd/pkg/dfs"
	"github.com/corfid/namingd/pkg/metrics"
	"github.com/corfid/namingd/pkg/naming"
	"github.com/corfid/namingd/pkg/storage"
)

// ErrUnknownProcedure is returned for procedure numbers outside a program's
// range; the connection layer answers with an RPC-level PROC_UNAVAIL.
var ErrUnknownProcedure = errors.New("unknown procedure")

// ServiceHandler translates naming service procedures to facade calls.
type ServiceHandler struct {
	service *naming.Service
	metrics metrics.NamingMetrics
}

func NewServiceHandler(service *naming.Service, m metrics.NamingMetrics) *ServiceHandler {
	if m == nil {
		m = metrics.NewNamingMetrics()
	}
	return &ServiceHandler{service: service, metrics: m}
}

// Handle executes one naming service procedure and returns the encoded
// reply body. Domain failures travel as a status inside the reply; only
// wire-level problems surface as errors.
func (h *ServiceHandler) Handle(ctx context.Context, procedure uint32, data []byte) ([]byte, error) {
	name := ProcedureName(procedure)
	h.metrics.RecordRequestStart(name)
	defer h.metrics.RecordRequestEnd(name)
	start := time.Now()

	reply, err := h.dispatch(ctx, procedure, data)
	h.metrics.RecordRequest(name, time.Since(start), err)
	return reply, err
}

func (h *ServiceHandler) dispatch(ctx context.Context, procedure uint32, data []byte) ([]byte, error) {
	switch procedure {
	case ServiceProcNull:
		return Encode(&StatusReply{Status: StatusOK})

	case ServiceProcLock:
		var args LockArgs
		if err := Decode(data, &args); err != nil {
			return Encode(&StatusReply{Status: StatusInvalidArgument})
		}
		path, err := dfs.Parse(args.Path)
		if err != nil {
			return Encode(&StatusReply{Status: StatusInvalidArgument})
		}
		err = h.service.Lock(ctx, path, args.Exclusive)
		return Encode(&StatusReply{Status: StatusOf(err)})

	case ServiceProcUnlock:
		var args LockArgs
		if err := Decode(data, &args); err != nil {
			return Encode(&StatusReply{Status: StatusInvalidArgument})
		}
		path, err := dfs.Parse(args.Path)
		if err != nil {
			return Encode(&StatusReply{Status: StatusInvalidArgument})
		}
		h.service.Unlock(path, args.Exclusive)
		return Encode(&StatusReply{Status: StatusOK})

	case ServiceProcIsDirectory:
		path, status := h.parsePath(data)
		if status != StatusOK {
			return Encode(&BoolReply{Status: status})
		}
		isDir, err := h.service.IsDirectory(ctx, path)
		return Encode(&BoolReply{Status: StatusOf(err), Value: isDir})

	case ServiceProcList:
		path, status := h.parsePath(data)
		if status != StatusOK {
			return Encode(&ListReply{Status: status})
		}
		entries, err := h.service.List(ctx, path)
		if entries == nil {
			entries = []string{}
		}
		return Encode(&ListReply{Status: StatusOf(err), Entries: entries})

	case ServiceProcCreateFile:
		path, status := h.parsePath(data)
		if status != StatusOK {
			return Encode(&BoolReply{Status: status})
		}
		created, err := h.service.CreateFile(ctx, path)
		return Encode(&BoolReply{Status: StatusOf(err), Value: created})

	case ServiceProcCreateDirectory:
		path, status := h.parsePath(data)
		if status != StatusOK {
			return Encode(&BoolReply{Status: status})
		}
		created, err := h.service.CreateDirectory(ctx, path)
		return Encode(&BoolReply{Status: StatusOf(err), Value: created})

	case ServiceProcDelete:
		path, status := h.parsePath(data)
		if status != StatusOK {
			return Encode(&BoolReply{Status: status})
		}
		deleted, err := h.service.Delete(ctx, path)
		return Encode(&BoolReply{Status: StatusOf(err), Value: deleted})

	case ServiceProcGetStorage:
		path, status := h.parsePath(data)
		if status != StatusOK {
			return Encode(&HandleReply{Status: status})
		}
		handle, err := h.service.GetStorage(ctx, path)
		return Encode(&HandleReply{Status: StatusOf(err), Host: handle.Host, Port: handle.Port})

	default:
		return nil, ErrUnknownProcedure
	}
}

func (h *ServiceHandler) parsePath(data []byte) (dfs.Path, uint32) {
	var args PathArgs
	if err := Decode(data, &args); err != nil {
		return dfs.Path{}, StatusInvalidArgument
	}
	path, err := dfs.Parse(args.Path)
	if err != nil {
		return dfs.Path{}, StatusInvalidArgument
	}
	return path, StatusOK
}

// RegistrationHandler translates the registration procedure to the facade.
type RegistrationHandler struct {
	registration *naming.Registration
	metrics      metrics.NamingMetrics
}

func NewRegistrationHandler(registration *naming.Registration, m metrics.NamingMetrics) *RegistrationHandler {
	if m == nil {
		m = metrics.NewNamingMetrics()
	}
	return &RegistrationHandler{registration: registration, metrics: m}
}

func (h *RegistrationHandler) Handle(ctx context.Context, procedure uint32, data []byte) ([]byte, error) {
	switch procedure {
	case RegistrationProcNull:
		return Encode(&StatusReply{Status: StatusOK})

	case RegistrationProcRegister:
		h.metrics.RecordRequestStart("REGISTER")
		defer h.metrics.RecordRequestEnd("REGISTER")
		start := time.Now()
		reply, err := h.register(ctx, data)
		h.metrics.RecordRequest("REGISTER", time.Since(start), err)
		return reply, err

	default:
		return nil, ErrUnknownProcedure
	}
}

func (h *RegistrationHandler) register(ctx context.Context, data []byte) ([]byte, error) {
	var args RegisterArgs
	if err := Decode(data, &args); err != nil {
		return Encode(&RegisterReply{Status: StatusInvalidArgument, Duplicates: []string{}})
	}

	files := make([]dfs.Path, 0, len(args.Files))
	for _, raw := range args.Files {
		path, err := dfs.Parse(raw)
		if err != nil {
			logger.Warn("registration carries malformed path %q", raw)
			return Encode(&RegisterReply{Status: StatusInvalidArgument, Duplicates: []string{}})
		}
		files = append(files, path)
	}

	pair := storage.Pair{
		Storage: storage.StorageHandle{Host: args.StorageHost, Port: args.StoragePort},
		Command: storage.CommandHandle{Host: args.CommandHost, Port: args.CommandPort},
	}

	duplicates, err := h.registration.Register(ctx, pair, files)
	if err != nil {
		return Encode(&RegisterReply{Status: StatusOf(err), Duplicates: []string{}})
	}

	rejected := make([]string, len(duplicates))
	for i, p := range duplicates {
		rejected[i] = p.String()
	}
	return Encode(&RegisterReply{Status: StatusOK, Duplicates: rejected})
}
