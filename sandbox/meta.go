//go:build linux

package sandbox

import (
	"encoding/json"
	"fmt"
)

// MetaEncoder renders a RunStats into the bytes written to the meta file.
// Encoding format is an external boundary concern (see the default and
// legacy implementations below); the Keeper/Jailer only depend on this
// interface.
type MetaEncoder interface {
	Encode(stats *RunStats) ([]byte, error)
}

// defaultMetaEncoder renders every RunStats field as one JSON object.
type defaultMetaEncoder struct{}

type defaultMetaDoc struct {
	WallTimeMs       uint64 `json:"wallTimeMs"`
	CPUTimeMs        uint64 `json:"cpuTimeMs"`
	UserTimeMs       uint64 `json:"userTimeMs"`
	SystemTimeMs     uint64 `json:"systemTimeMs"`
	MemoryKB         uint64 `json:"memoryKb"`
	RSSPeak          int64  `json:"rssPeak"`
	CSwVoluntary     int64  `json:"cswVoluntary"`
	CSwForced        int64  `json:"cswForced"`
	SoftPageFaults   uint64 `json:"softPageFaults"`
	HardPageFaults   uint64 `json:"hardPageFaults"`
	NrSysCalls       int    `json:"nrSysCalls"`
	LastSysCall      int    `json:"lastSysCall"`
	TerminalSignal   int    `json:"terminalSignal"`
	ExitCode         int    `json:"exitCode"`
	ProcessWasKilled bool   `json:"processWasKilled"`
	ResultCode       string `json:"resultCode"`
	Version          string `json:"version"`
	InternalMessage  string `json:"internalMessage"`
}

func (defaultMetaEncoder) Encode(s *RunStats) ([]byte, error) {
	doc := defaultMetaDoc{
		WallTimeMs:       s.Time.WallTimeMs,
		CPUTimeMs:        s.Time.CPUTimeMs,
		UserTimeMs:       s.Time.UserTimeMs,
		SystemTimeMs:     s.Time.SystemTimeMs,
		MemoryKB:         s.MemoryKB,
		RSSPeak:          s.RSSPeak,
		CSwVoluntary:     s.CSwVoluntary,
		CSwForced:        s.CSwForced,
		SoftPageFaults:   s.SoftPageFaults,
		HardPageFaults:   s.HardPageFaults,
		NrSysCalls:       s.NrSysCalls,
		LastSysCall:      s.LastSysCall,
		TerminalSignal:   s.TerminalSignal,
		ExitCode:         s.ExitCode,
		ProcessWasKilled: s.ProcessWasKilled,
		ResultCode:       s.ResultCode.String(),
		Version:          s.Version,
		InternalMessage:  s.InternalMessage,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// legacyMetaEncoder reproduces the handcrafted format of older isolate-family
// tools: a numeric resultCode, a hardcoded version string, and no trailing
// newline requirements beyond those produced by the formatter.
type legacyMetaEncoder struct{}

type legacyMetaDoc struct {
	WallTimeMs       uint64 `json:"wallTimeMs"`
	CPUTimeMs        uint64 `json:"cpuTimeMs"`
	UserTimeMs       uint64 `json:"userTimeMs"`
	SystemTimeMs     uint64 `json:"systemTimeMs"`
	MemoryKB         uint64 `json:"memoryKb"`
	RSSPeak          int64  `json:"rssPeak"`
	CSwVoluntary     int64  `json:"cswVoluntary"`
	CSwForced        int64  `json:"cswForced"`
	SoftPageFaults   uint64 `json:"softPageFaults"`
	HardPageFaults   uint64 `json:"hardPageFaults"`
	NrSysCalls       int    `json:"nrSysCalls"`
	LastSysCall      int    `json:"lastSysCall"`
	TerminalSignal   int    `json:"terminalSignal"`
	ExitCode         int    `json:"exitCode"`
	ProcessWasKilled bool   `json:"processWasKilled"`
	ResultCode       int    `json:"resultCode"`
	Version          string `json:"version"`
	InternalMessage  string `json:"internalMessage"`
}

func (legacyMetaEncoder) Encode(s *RunStats) ([]byte, error) {
	doc := legacyMetaDoc{
		WallTimeMs:       s.Time.WallTimeMs,
		CPUTimeMs:        s.Time.CPUTimeMs,
		UserTimeMs:       s.Time.UserTimeMs,
		SystemTimeMs:     s.Time.SystemTimeMs,
		MemoryKB:         s.MemoryKB,
		RSSPeak:          s.RSSPeak,
		CSwVoluntary:     s.CSwVoluntary,
		CSwForced:        s.CSwForced,
		SoftPageFaults:   s.SoftPageFaults,
		HardPageFaults:   s.HardPageFaults,
		NrSysCalls:       s.NrSysCalls,
		LastSysCall:      s.LastSysCall,
		TerminalSignal:   s.TerminalSignal,
		ExitCode:         s.ExitCode,
		ProcessWasKilled: s.ProcessWasKilled,
		ResultCode:       int(s.ResultCode),
		Version:          "2.0",
		InternalMessage:  s.InternalMessage,
	}
	return json.MarshalIndent(doc, "", "\t")
}

// NewMetaEncoder selects the encoder matching the --legacy-meta-json flag.
func NewMetaEncoder(legacy bool) MetaEncoder {
	if legacy {
		return legacyMetaEncoder{}
	}
	return defaultMetaEncoder{}
}

// errorStats builds the best-effort fallback record written when a Run
// aborts on a fatal path before any real result is known.
func errorStats() *RunStats {
	return &RunStats{
		ResultCode:      InternalError,
		InternalMessage: "No results provided.",
		Version:         StatVersion,
	}
}

var _ fmt.Stringer = ResultCode(0)
