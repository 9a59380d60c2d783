package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blocksim/pkg/exchange/auction"
	"blocksim/pkg/exchange/clearing"
	"blocksim/pkg/sim"
	"blocksim/pkg/storage"
	"blocksim/pkg/util"
	"blocksim/params"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sim <log-name> <dists-csv> <consts-csv> [n]")
	fmt.Fprintln(os.Stderr, "  pass n as the fourth argument to disable file logging")
}

func main() {
	args := os.Args[1:]
	if len(args) < 3 {
		usage()
		os.Exit(1)
	}
	logName := args[0]
	distsName := args[1]
	constsName := args[2]

	enableLog := true
	if len(args) > 3 && strings.EqualFold(args[3], "n") {
		enableLog = false
	}

	rt := params.LoadRuntime("")

	// With file logging on, diagnostics tee to a per-experiment log next to
	// the CSV traces; the null-sink mode stays console-only.
	var logger *zap.Logger
	var err error
	if enableLog {
		logger, err = util.NewLoggerWithFile(filepath.Join(rt.LogDir, fmt.Sprintf("sim_%s.log", logName)))
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dists, err := params.ParseDistsCSV(filepath.Join(rt.ConfigDir, distsName))
	if err != nil {
		logger.Error("parse dists config", zap.Error(err))
		os.Exit(1)
	}
	consts, err := params.ParseConstsCSV(filepath.Join(rt.ConfigDir, constsName))
	if err != nil {
		logger.Error("parse consts config", zap.Error(err))
		os.Exit(1)
	}

	sinks, err := util.NewSinks(rt.LogDir, logName, enableLog)
	if err != nil {
		logger.Error("open log sinks", zap.Error(err))
		os.Exit(1)
	}
	defer sinks.Close()
	sinks.WriteHeaders(consts.MarketType != auction.CDA)

	runID := uuid.NewString()
	var archive *storage.Archive
	if enableLog && rt.ArchiveDir != "" {
		archive, err = storage.Open(filepath.Join(rt.ArchiveDir, logName), runID)
		if err != nil {
			logger.Error("open block archive", zap.Error(err))
			os.Exit(1)
		}
		defer archive.Close()
		if err := archive.SaveHeader(storage.RunHeader{
			RunID:      runID,
			Name:       logName,
			MarketType: consts.MarketType.String(),
			StartedAt:  time.Now(),
		}); err != nil {
			logger.Warn("save run header", zap.Error(err))
		}
	}

	logger.Info("starting simulation",
		zap.String("run_id", runID),
		zap.String("market", consts.MarketType.String()),
		zap.Uint64("blocks", consts.NumBlocks),
		zap.Uint64("investors", consts.NumInvestors),
		zap.Uint64("makers", consts.NumMakers))

	simulation, miner := sim.Init(dists, consts, rt, sinks, archive, logger)
	if err := simulation.Run(miner); err != nil {
		logger.Error("simulation failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("done running simulation, saving data")
	simulation.House.LogAllPlayers(clearing.Final)

	fundVal := simulation.FundamentalValue()
	logger.Info("fundamental value", zap.Float64("value", fundVal))

	pre := simulation.Performance(fundVal)
	simulation.WriteResultsRow(runID, false, pre)

	// Close every non-zero inventory at the fundamental, then report again.
	simulation.House.Liquidate(fundVal)
	post := simulation.Performance(fundVal)
	simulation.WriteResultsRow(runID, true, post)

	logger.Info("simulation complete",
		zap.Uint64("blocks", simulation.Block.Get()),
		zap.Float64("total_gas", simulation.House.TotalGas()),
		zap.Float64("maker_tax", simulation.House.MakerTaxPaid()))
}
