package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/retail-backend/api/responses"
	"github.com/angelmondragon/retail-backend/api/validators"
	"github.com/angelmondragon/retail-backend/internal/reporting"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/logger"
)

// SalesFeed serves one page of the merged transaction feed for a period.
func SalesFeed(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := validators.ParseQueryInt(r, "page", 1, 1, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period := enums.ReportPeriod(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("period"))))
		feed, err := svc.Feed(r.Context(), reporting.FeedInput{Period: period, Page: page})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, feed)
	}
}
