package config

import (
	"maps"
	"sort"
	"strings"

	logx "statusbot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the changed sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	restart := make([]string, 0, 3)
	attrs := make([]logx.Field, 0, 16)

	// Source connection (never log token)
	oS, nS := oldCfg.Source, newCfg.Source
	if strings.TrimSpace(oS.Endpoint) != strings.TrimSpace(nS.Endpoint) ||
		oS.Token != nS.Token ||
		oS.AuthScheme != nS.AuthScheme ||
		oS.CursorParam != nS.CursorParam ||
		strings.TrimSpace(oS.Timeout) != strings.TrimSpace(nS.Timeout) {
		changed = append(changed, "source")
		restart = append(restart, "source")
		attrs = append(attrs,
			logx.String("source.endpoint", strings.TrimSpace(nS.Endpoint)),
			logx.Bool("source.token_changed", oS.Token != nS.Token),
			logx.String("source.timeout", strings.TrimSpace(nS.Timeout)),
		)
	}
	if oS.Fields != nS.Fields {
		changed = append(changed, "source.fields")
		attrs = append(attrs,
			logx.String("source.fields.records", nS.Fields.Records),
			logx.String("source.fields.advance", nS.Fields.Advance),
		)
	}

	// Telegram (never log token or chat id)
	oT, nT := oldCfg.Telegram, newCfg.Telegram
	if oT != nT {
		changed = append(changed, "telegram")
		restart = append(restart, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oT.Token != nT.Token),
			logx.Bool("telegram.chat_changed", oT.ChatID != nT.ChatID || oT.ThreadID != nT.ThreadID),
			logx.Int("telegram.rate_per_sec", nT.RatePerSec),
		)
	}

	// Poll cadence
	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.interval", newCfg.Poll.Interval.String()),
			logx.String("poll.schedule", strings.TrimSpace(newCfg.Poll.Schedule)),
			logx.Bool("poll.hold_cursor_on_delivery_failure", newCfg.Poll.HoldCursorOnDeliveryFailure),
		)
	}

	// Verdicts
	if !maps.Equal(oldCfg.Verdicts, newCfg.Verdicts) {
		changed = append(changed, "verdicts")
		codes := make([]string, 0, len(newCfg.Verdicts))
		for code := range newCfg.Verdicts {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		attrs = append(attrs, logx.String("verdicts.codes", strings.Join(codes, ",")))
	}

	// Logging
	oL, nL := oldCfg.Logging, newCfg.Logging
	if oL.Level != nL.Level ||
		oL.Console != nL.Console ||
		oL.File.Enabled != nL.File.Enabled ||
		strings.TrimSpace(oL.File.Path) != strings.TrimSpace(nL.File.Path) ||
		oL.File.MaxSizeMB != nL.File.MaxSizeMB ||
		intOr(oL.File.MaxBackups, -1) != intOr(nL.File.MaxBackups, -1) ||
		oL.Telegram != nL.Telegram {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", nL.Level),
			logx.Bool("logx.console", nL.Console),
			logx.Bool("logx.file_enabled", nL.File.Enabled),
			logx.Bool("logx.telegram_enabled", nL.Telegram.Enabled),
		)
	}

	// Storage (persistence). Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy, oPath, nPath string
	if s := oldCfg.Storage; s != nil {
		oDriver, oBusy, oPath = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path)
	}
	if s := newCfg.Storage; s != nil {
		nDriver, nBusy, nPath = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path)
	}
	if oDriver != nDriver || oBusy != nBusy || oPath != nPath {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPath != ""),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	sort.Strings(changed)
	return changed, attrs, restart
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
