// Package config loads and watches the machinepulse configuration file.
//
// Top-level types:
//   - Config{Server, Monitor, Lines, Alerts, Metrics}: full tree parsed from YAML
//   - MonitorConfig: refresh_interval, fields, primary/secondary field,
//     window, maintenance_scale, failure_threshold
//   - Line: id, type (csv|http|prometheus|kafka|mqtt|s3|synthetic),
//     path/endpoint, brokers/topic, s3 bucket/object, column mapping, auth, tls
//     AccessKey() and SecretKey() resolve object store credentials
//   - AuthConfig: mode (apikey|bearer|basic|none); Key(), Token() and
//     Password() resolve secrets from environment variables
//
// Load(path) reads the YAML file, applies defaults (30s refresh, window 100,
// scale 10, port 8080), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config, re-adding the watch after atomic
// saves replace the inode.
package config
