package tracking

type positionErrorRequest struct {
	Message string `json:"message"`
}

type positionsRequest struct {
	Samples []Sample `json:"samples"`
}

type pushResponse struct {
	Accepted int `json:"accepted"`
}
