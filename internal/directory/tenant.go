package directory

// Tenant identifies one data center of the upstream identity directory.
type Tenant struct {
	// Name is the short tenant label used in logs and metrics.
	Name string
	// APIDomain is the directory API host suffix, e.g. "us1.gigya.com".
	APIDomain string
}
