package session

// redactForLog strips binary media content out of a payload copy before it
// reaches the access log. The live payload handed to the handler is never
// modified.
func redactForLog(event string, arg any) any {
	m, ok := arg.(map[string]any)
	if !ok {
		return arg
	}
	list, ok := m["upload_media_info_list"].([]any)
	if !ok {
		return arg
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	redacted := make([]any, 0, len(list))
	for _, item := range list {
		info, ok := item.(map[string]any)
		if !ok {
			redacted = append(redacted, item)
			continue
		}
		cp := make(map[string]any, len(info))
		for k, v := range info {
			cp[k] = v
		}
		if _, ok := cp["image_src"]; ok {
			cp["image_src"] = "[Binary Array]"
		}
		if cp["data_location"] == "server" {
			delete(cp, "array_buffer")
		}
		redacted = append(redacted, cp)
	}
	out["upload_media_info_list"] = redacted
	return out
}
