/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package mail

import (
	"fmt"
	"strings"

	"stash.kopano.io/kgol/contactrelay/utils"
)

// TLSMode selects how the connection to a provider is secured.
type TLSMode string

const (
	TLSModeStartTLS TLSMode = "starttls"
	TLSModeImplicit TLSMode = "tls"
	TLSModePlain    TLSMode = "plain"
)

// ParseTLSMode returns the TLSMode for s, which is matched case insensitive.
func ParseTLSMode(s string) (TLSMode, error) {
	switch mode := TLSMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case TLSModeStartTLS, TLSModeImplicit, TLSModePlain:
		return mode, nil
	case "":
		return TLSModeStartTLS, nil
	default:
		return "", fmt.Errorf("unknown tls mode: %q", s)
	}
}

// Service is a well known mail provider submission endpoint.
type Service struct {
	Name    string
	Host    string
	Port    int
	TLSMode TLSMode
}

// DefaultServiceName names the service used when nothing else is configured.
const DefaultServiceName = "gmail"

var services = map[string]Service{
	"gmail":   {Name: "gmail", Host: "smtp.gmail.com", Port: 587, TLSMode: TLSModeStartTLS},
	"outlook": {Name: "outlook", Host: "smtp.office365.com", Port: 587, TLSMode: TLSModeStartTLS},
	"yahoo":   {Name: "yahoo", Host: "smtp.mail.yahoo.com", Port: 465, TLSMode: TLSModeImplicit},
	"icloud":  {Name: "icloud", Host: "smtp.mail.me.com", Port: 587, TLSMode: TLSModeStartTLS},
}

var serviceDomains = map[string]string{
	"gmail.com":      "gmail",
	"googlemail.com": "gmail",
	"outlook.com":    "outlook",
	"hotmail.com":    "outlook",
	"live.com":       "outlook",
	"office365.com":  "outlook",
	"yahoo.com":      "yahoo",
	"ymail.com":      "yahoo",
	"icloud.com":     "icloud",
	"me.com":         "icloud",
	"mac.com":        "icloud",
}

// LookupService returns the Service registered with name.
func LookupService(name string) (Service, bool) {
	service, ok := services[strings.ToLower(strings.TrimSpace(name))]
	return service, ok
}

// InferService returns the Service which handles the mailbox address, judged
// by its domain.
func InferService(address string) (Service, bool) {
	domain, err := utils.GetDomainFromEmail(address)
	if err != nil {
		return Service{}, false
	}
	name, ok := serviceDomains[domain]
	if !ok {
		return Service{}, false
	}
	return LookupService(name)
}

// ResolveService picks the provider endpoint for an account. An explicit
// service name wins, then a service inferred from account, then the default.
func ResolveService(name string, account string) (Service, error) {
	if name != "" {
		service, ok := LookupService(name)
		if !ok {
			return Service{}, fmt.Errorf("unknown mail service: %q", name)
		}
		return service, nil
	}
	if service, ok := InferService(account); ok {
		return service, nil
	}
	service, _ := LookupService(DefaultServiceName)
	return service, nil
}
