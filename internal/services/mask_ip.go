package services

import "strings"

const invalidIP = "IP inválido"

// MaskIP 隐藏IP中间部分：IPv4 保留首尾两段，IPv6 保留前两组和最后一组
func MaskIP(ip string) string {
	ip = strings.TrimPrefix(ip, "::ffff:")

	switch {
	case strings.Contains(ip, "."):
		parts := strings.Split(ip, ".")
		if len(parts) != 4 {
			return invalidIP
		}
		return parts[0] + ".xxx.xxx." + parts[3]
	case strings.Contains(ip, ":"):
		parts := strings.Split(ip, ":")
		if len(parts) < 3 {
			return invalidIP
		}
		masked := make([]string, 0, len(parts))
		masked = append(masked, parts[0], parts[1])
		for i := 0; i < len(parts)-3; i++ {
			masked = append(masked, "xxxx")
		}
		masked = append(masked, parts[len(parts)-1])
		return strings.Join(masked, ":")
	default:
		return invalidIP
	}
}
