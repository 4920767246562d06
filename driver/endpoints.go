package driver

// Upstream endpoints relative to the API root
const (
	EndpointClients            = "/client/clients"
	EndpointClientFormulaNotes = "/client/clientformulanotes"
	EndpointUpdateClient       = "/client/updateclient"
	EndpointSales              = "/sale/sales"
	EndpointStaffAppointments  = "/appointment/staffappointments"
	EndpointBookableItems      = "/appointment/bookableitems"
)

// UpstreamDateTimeLayout is the zone-less datetime format accepted in query parameters
const UpstreamDateTimeLayout = "2006-01-02T15:04:05"
