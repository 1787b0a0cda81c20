package daemon

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/adcondev/print-servicio/internal/spooler"
)

// PrinterDiscovery reports on installed printers. Every call re-enumerates.
type PrinterDiscovery struct {
	catalog spooler.Catalog
}

// NewPrinterDiscovery creates a discovery service over catalog.
func NewPrinterDiscovery(catalog spooler.Catalog) *PrinterDiscovery {
	return &PrinterDiscovery{catalog: catalog}
}

// GetSummary returns a lightweight summary for health checks
func (pd *PrinterDiscovery) GetSummary(ctx context.Context) PrinterSummary {
	printers, err := pd.catalog.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("[PRINTERS] ⚠️ Error enumerating printers")
		return PrinterSummary{Status: "error"}
	}
	return summarize(printers)
}

func summarize(printers []spooler.Printer) PrinterSummary {
	summary := PrinterSummary{Status: "ok", DetectedCount: len(printers)}
	for _, p := range printers {
		if p.IsDefault {
			summary.DefaultName = p.Name
			break
		}
	}

	switch {
	case len(printers) == 0:
		summary.Status = "error"
	case summary.DefaultName == "":
		summary.Status = "warning"
	}
	return summary
}

// LogStartupDiagnostics logs printer info at service start
func (pd *PrinterDiscovery) LogStartupDiagnostics(ctx context.Context) {
	printers, err := pd.catalog.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("[PRINTERS] ⚠️ Error enumerating printers")
		return
	}

	log.Info().Msg("[PRINTERS] ══════════════════════════════════════════════════")
	log.Info().Msgf("[PRINTERS] 🖨️ Detected %d installed printer(s)", len(printers))

	if len(printers) == 0 {
		log.Warn().Msg("[PRINTERS] ⚠️ No printers installed!")
	}
	for _, p := range printers {
		mark := ""
		if p.IsDefault {
			mark = " ⭐"
		}
		log.Info().Msgf("[PRINTERS]    • %s%s", p.Name, mark)
	}
	log.Info().Msg("[PRINTERS] ══════════════════════════════════════════════════")
}
