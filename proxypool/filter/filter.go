// Package filter decides which scraped records are worth benchmarking.
package filter

import (
	"strings"

	"ytdlp_proxy/proxypool/model"
)

// DefaultExcludedCountry 是默认排除的国家。
const DefaultExcludedCountry = "Russia"

// 各来源对同一国家的不同写法（ISO 代码、正式名称）映射到统一名称。
var countryAliases = map[string]string{
	"ru":                 "russia",
	"rus":                "russia",
	"russian federation": "russia",
}

func canonicalCountry(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if alias, ok := countryAliases[c]; ok {
		return alias
	}
	return c
}

// IsValidProxy reports whether r has a host and is not located in one of the
// excluded countries. Countries match case-insensitively, and ISO codes or
// official names of a country match its common name. With no excluded list,
// DefaultExcludedCountry applies.
func IsValidProxy(r *model.ProxyRecord, excluded ...string) bool {
	if r == nil || strings.TrimSpace(r.Host) == "" {
		return false
	}
	if len(excluded) == 0 {
		excluded = []string{DefaultExcludedCountry}
	}
	country := canonicalCountry(r.Country)
	for _, c := range excluded {
		if country == canonicalCountry(c) {
			return false
		}
	}
	return true
}

// Filter 返回一个只包含有效记录的新切片，不修改输入。
func Filter(records []*model.ProxyRecord, excluded ...string) []*model.ProxyRecord {
	valid := make([]*model.ProxyRecord, 0, len(records))
	for _, r := range records {
		if IsValidProxy(r, excluded...) {
			valid = append(valid, r)
		}
	}
	return valid
}
