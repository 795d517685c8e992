package document

import (
	"strings"

	"github.com/weibaohui/insurebot/internal/model"
)

// 识别服务字段名到业务字段名的白名单映射
var (
	identityFields = map[string]string{
		"given_names": "FirstName",
		"surname":     "LastName",
		"id_number":   "PassportNumber",
		"birth_date":  "BirthDate",
		"expiry_date": "ExpiryDate",
		"country":     "Country",
	}
	vehicleFrontFields = map[string]string{
		"manufacturer":     "Manufacturer",
		"model":            "Model",
		"vin":              "VIN",
		"year":             "Year",
		"manufacture_year": "Year",
		"color":            "Color",
		"body_type":        "BodyType",
	}
	vehicleBackFields = map[string]string{
		"registration_number": "RegistrationNumber",
		"surname":             "OwnerLastName",
		"name":                "OwnerName",
		"address":             "OwnerAddress",
		"registration_date":   "RegistrationDate",
	}
)

func fieldMapping(kind model.DocumentKind) map[string]string {
	switch kind {
	case model.DocumentIdentity:
		return identityFields
	case model.DocumentVehicleFront:
		return vehicleFrontFields
	case model.DocumentVehicleBack:
		return vehicleBackFields
	}
	return nil
}

// normalizeKey 去掉末尾的 ".value" 与 "[0]" 后转小写
func normalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.TrimSuffix(k, ".value")
	k = strings.TrimSuffix(k, "[0]")
	return k
}

// remap 白名单内的键改为业务名，其余原样保留；业务名冲突时以映射结果为准
func remap(kind model.DocumentKind, fields map[string]string) map[string]string {
	mapping := fieldMapping(kind)
	out := make(map[string]string, len(fields))
	sources := make(map[string]string)

	for key, value := range fields {
		domain, ok := mapping[normalizeKey(key)]
		if !ok {
			if _, taken := sources[key]; !taken {
				out[key] = value
			}
			continue
		}
		// 多个原始键命中同一业务名时取最短的键，保证结果稳定
		if prev, exists := sources[domain]; exists && !preferKey(key, prev) {
			continue
		}
		sources[domain] = key
		out[domain] = value
	}
	return out
}

func preferKey(candidate, current string) bool {
	if len(candidate) != len(current) {
		return len(candidate) < len(current)
	}
	return candidate < current
}
