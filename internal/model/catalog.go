package model

type Network string

const (
	NetworkMTN        Network = "mtn"
	NetworkTelecel    Network = "telecel"
	NetworkAirtelTigo Network = "airteltigo"
)

// BundlePackage is a sellable data bundle. VolumeMB is what the
// reseller API wants; Label is what the user sees.
type BundlePackage struct {
	Code     string  `json:"code"`
	Network  Network `json:"network"`
	Label    string  `json:"label"`
	VolumeMB int     `json:"volume_mb"`
	Price    Pesewas `json:"price"`
}

// SMMService is a social-media marketing service resold from an
// upstream panel. PricePerK is the price per 1000 units.
type SMMService struct {
	Code      string  `json:"code"`
	Platform  string  `json:"platform"`
	ServiceID int     `json:"service_id"`
	Label     string  `json:"label"`
	PricePerK Pesewas `json:"price_per_k"`
	MinQty    int     `json:"min_qty"`
	MaxQty    int     `json:"max_qty"`
}

var Bundles = []BundlePackage{
	{Code: "mtn-1gb", Network: NetworkMTN, Label: "1GB MTN", VolumeMB: 1024, Price: 600},
	{Code: "mtn-2gb", Network: NetworkMTN, Label: "2GB MTN", VolumeMB: 2048, Price: 1100},
	{Code: "mtn-5gb", Network: NetworkMTN, Label: "5GB MTN", VolumeMB: 5120, Price: 2400},
	{Code: "mtn-10gb", Network: NetworkMTN, Label: "10GB MTN", VolumeMB: 10240, Price: 4500},
	{Code: "telecel-1gb", Network: NetworkTelecel, Label: "1GB Telecel", VolumeMB: 1024, Price: 550},
	{Code: "telecel-5gb", Network: NetworkTelecel, Label: "5GB Telecel", VolumeMB: 5120, Price: 2300},
	{Code: "at-1gb", Network: NetworkAirtelTigo, Label: "1GB AirtelTigo", VolumeMB: 1024, Price: 500},
	{Code: "at-5gb", Network: NetworkAirtelTigo, Label: "5GB AirtelTigo", VolumeMB: 5120, Price: 2200},
}

var SMMServices = []SMMService{
	{Code: "ig-followers", Platform: "instagram", ServiceID: 2101, Label: "Instagram Followers", PricePerK: 1500, MinQty: 100, MaxQty: 50000},
	{Code: "ig-likes", Platform: "instagram", ServiceID: 2102, Label: "Instagram Likes", PricePerK: 400, MinQty: 50, MaxQty: 100000},
	{Code: "tt-views", Platform: "tiktok", ServiceID: 3301, Label: "TikTok Views", PricePerK: 120, MinQty: 500, MaxQty: 1000000},
	{Code: "tt-followers", Platform: "tiktok", ServiceID: 3302, Label: "TikTok Followers", PricePerK: 1800, MinQty: 100, MaxQty: 20000},
	{Code: "yt-subs", Platform: "youtube", ServiceID: 4401, Label: "YouTube Subscribers", PricePerK: 2500, MinQty: 100, MaxQty: 10000},
}

// FindBundle returns the package with the given code, or nil.
func FindBundle(code string) *BundlePackage {
	for i := range Bundles {
		if Bundles[i].Code == code {
			return &Bundles[i]
		}
	}
	return nil
}

// FindSMM returns the SMM service with the given code, or nil.
func FindSMM(code string) *SMMService {
	for i := range SMMServices {
		if SMMServices[i].Code == code {
			return &SMMServices[i]
		}
	}
	return nil
}
