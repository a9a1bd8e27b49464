package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// healthReport is what GET /healthz serves: process liveness plus a
// snapshot of the host resources the compile service is competing for.
type healthReport struct {
	Status      string  `json:"status"`
	UptimeSec   uint64  `json:"uptime_seconds"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	MemUsedMB   uint64  `json:"mem_used_mb"`
	MachinesHot int     `json:"machines_cached"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	report := healthReport{Status: "ok", MachinesHot: s.cache.count()}

	if info, err := host.Info(); err == nil {
		report.UptimeSec = info.Uptime
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		report.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		report.MemPercent = vm.UsedPercent
		report.MemUsedMB = vm.Used / (1024 * 1024)
	}

	c.JSON(http.StatusOK, report)
}
