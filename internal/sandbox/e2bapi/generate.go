package e2bapi

//go:generate go tool oapi-codegen -config cfg.yaml openapi.yml
