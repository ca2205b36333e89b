// Package confloader loads the process configuration and watches files.
//
// Sources are layered with koanf, later ones overriding earlier ones:
//
//  1. defaults already present in the target struct
//  2. a YAML file
//  3. environment variables with the EXSIM_ prefix
//  4. explicit values, typically command-line flags (WithOverrides)
//
// An environment variable names a section and a key separated by the first
// underscore: EXSIM_STORAGE_DATA_DIR sets storage.data_dir.
//
// Watcher reports changes to individual files. exsim uses it to warn that
// an edited session settings file takes effect on restart.
package confloader
