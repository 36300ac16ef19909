package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"sublimeassistant/engine/internal/appdirs"
	"sublimeassistant/engine/internal/engine"
	"sublimeassistant/engine/internal/envfile"
	"sublimeassistant/engine/internal/envutil"
	"sublimeassistant/engine/internal/errinfo"
	"sublimeassistant/engine/internal/logging"
	"sublimeassistant/engine/internal/rpc"
)

func main() {
	envResult := envfile.Load()
	debug := envutil.Bool("ASSISTANT_DEBUG")
	dataDir, err := appdirs.DataDir()
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}
	logSetup, logErr := logging.NewFileLogger(dataDir, debug)
	logger := logSetup.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "engine")
	if logSetup.Enabled {
		logger.Info("engine.logging_enabled", "path", logSetup.Path)
	}
	if envResult.Loaded {
		logger.Debug("engine.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		logger.Warn("engine.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	if logErr != nil {
		logger.Warn("engine.log_setup_failed", "error", logErr.Error())
	}
	if logSetup.Close != nil {
		defer logSetup.Close()
	}

	eng, err := engine.New(engine.WithLogger(logger))
	if err != nil {
		logger.Error("engine.init_failed", "error", err.Error())
		log.Fatalf("engine init failed: %v", err)
	}
	server := rpc.NewServer(engine.APIVersion, os.Stdin, os.Stdout, logger)
	eng.SetNotifier(server.Notify)

	register := func(method string, fn func(context.Context, json.RawMessage) (any, *errinfo.ErrorInfo)) {
		server.Register(method, func(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
			result, errInfo := fn(ctx, params)
			if errInfo != nil {
				msg := errInfo.ErrorCode
				if errInfo.Detail != "" {
					msg = errInfo.Detail
				}
				return nil, &rpc.Error{Message: msg, Data: errInfo}
			}
			return result, nil
		})
	}

	register("EngineGetInfo", eng.EngineGetInfo)

	register("SettingsGet", eng.SettingsGet)
	register("SettingsUpdate", eng.SettingsUpdate)
	register("SettingsSetActivePreset", eng.SettingsSetActivePreset)

	register("ConversationSubmit", eng.ConversationSubmit)
	register("ConversationCancel", eng.ConversationCancel)
	register("ConversationGet", eng.ConversationGet)

	register("ProposalCreate", eng.ProposalCreate)
	register("ProposalPreview", eng.ProposalPreview)
	register("ProposalAccept", eng.ProposalAccept)
	register("ProposalReject", eng.ProposalReject)
	register("ProposalGet", eng.ProposalGet)
	register("ProposalList", eng.ProposalList)

	if err := server.Serve(context.Background()); err != nil {
		logger.Error("rpc.server_error", "error", err.Error())
		log.Fatalf("rpc server error: %v", err)
	}
}
