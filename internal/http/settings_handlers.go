package http

import (
	nethttp "net/http"

	"github.com/gin-gonic/gin"

	"go-recon-dashboard/internal/config"
	"go-recon-dashboard/internal/recon"
)

type option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func settingsHandler(cfg config.Config) gin.HandlerFunc {
	statuses := make([]option, 0, len(recon.Statuses))
	for _, st := range recon.Statuses {
		statuses = append(statuses, option{Value: string(st), Label: st.Label()})
	}
	causes := make([]option, 0, len(recon.RootCauses))
	for _, rc := range recon.RootCauses {
		causes = append(causes, option{Value: string(rc), Label: rc.Label()})
	}

	return func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, gin.H{
			"data": gin.H{
				"refresh_interval_sec":    int(cfg.RefreshInterval.Seconds()),
				"auth_disabled":           cfg.AuthDisabled,
				"api_base_url":            cfg.APIBaseURL,
				"high_severity_threshold": recon.HighSeverityThreshold,
				"statuses":                statuses,
				"root_causes":             causes,
				"categories": []string{
					recon.CategorySTP,
					recon.CategoryBillPay,
					recon.CategoryPaymentProcessing,
					recon.CategoryStripe,
					recon.CategoryInternalBankTransfers,
					recon.CategoryPnL,
					recon.CategoryMarketplace,
				},
			},
		})
	}
}
