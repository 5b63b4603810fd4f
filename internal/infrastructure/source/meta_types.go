package source

// Meta Graph API response shapes. Numeric insight fields are returned as strings.

type metaInsightsResponse struct {
	Data   []metaInsight `json:"data"`
	Paging *metaPaging   `json:"paging,omitempty"`
	Error  *metaError    `json:"error,omitempty"`
}

type metaInsight struct {
	AdID         string       `json:"ad_id"`
	AdName       string       `json:"ad_name"`
	AdsetID      string       `json:"adset_id"`
	CampaignID   string       `json:"campaign_id"`
	CampaignName string       `json:"campaign_name"`
	Spend        string       `json:"spend"`
	Clicks       string       `json:"clicks"`
	Impressions  string       `json:"impressions"`
	Actions      []metaAction `json:"actions"`
	DateStart    string       `json:"date_start"`
}

type metaAction struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

type metaPaging struct {
	Cursors struct {
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

type metaError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type metaAccountResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	AccountStatus int        `json:"account_status"`
	Error         *metaError `json:"error,omitempty"`
}

// leadActionTypes are checked in order; the first present type is the lead count
var leadActionTypes = []string{
	"lead",
	"onsite_conversion.lead_grouped",
	"offsite_conversion.fb_pixel_lead",
}
