// The config file schema is declared here instead of in a .proto file. Every leaf field is named after the
// command line flag it sets, so a config file such as
//
//	thumbnail { thumbnail_width: 200 thumbnail_height: 200 }
//	log { log_level: "debug" }
//
// is equivalent to `--thumbnail_width=200 --thumbnail_height=200 --log_level=debug`.
// Fields use proto2 semantics so that explicitly set zero values (e.g. `enable_thumbnail_cache: false`) are kept.

package config

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const schemaPackage = "civitloader.config"

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	boolField    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	int32Field   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	int64Field   = descriptorpb.FieldDescriptorProto_TYPE_INT64
	stringField  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	messageField = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

// leaf declares an optional scalar field whose name is also the flag name.
func leaf(name string, number int32, kind fieldType) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   kind.Enum(),
	}
}

// section declares an optional nested message field of the given message type.
func section(name string, number int32, messageName string) *descriptorpb.FieldDescriptorProto {
	field := leaf(name, number, messageField)
	field.TypeName = proto.String("." + schemaPackage + "." + messageName)
	return field
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// configSchema is the file descriptor holding the Config message and its sections.
func configSchema() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("civitloader/config.proto"),
		Package: proto.String(schemaPackage),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("Config",
				section("server", 1, "ServerConfig"),
				section("thumbnail", 2, "ThumbnailConfig"),
				section("civitai", 3, "CivitaiConfig"),
				section("log", 4, "LogConfig"),
			),
			message("ServerConfig",
				leaf("address", 1, stringField),
				leaf("redis_address", 2, stringField),
				leaf("mount_dir", 3, stringField),
				leaf("list_files_concurrency", 4, int32Field),
			),
			message("ThumbnailConfig",
				leaf("enable_thumbnail_cache", 1, boolField),
				leaf("thumbnail_cache_max_entries", 2, int32Field),
				leaf("thumbnail_cache_max_memory_mb", 3, int64Field),
				leaf("thumbnail_width", 4, int32Field),
				leaf("thumbnail_height", 5, int32Field),
				leaf("thumbnail_workers", 6, int32Field),
				leaf("thumbnail_max_pixels", 7, int64Field),
			),
			message("CivitaiConfig",
				leaf("civitai_base_url", 1, stringField),
				leaf("civitai_timeout", 2, stringField), // A Go duration string, e.g. "30s".
			),
			message("LogConfig",
				leaf("log_handler_type", 1, stringField),
				leaf("log_level", 2, stringField),
			),
		},
	}
}

// ConfigDescriptor returns the descriptor of the top level Config message. It is built once per process.
var ConfigDescriptor = sync.OnceValues(func() (protoreflect.MessageDescriptor, error) {
	file, err := protodesc.NewFile(configSchema(), protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to build config schema: %w", err)
	}
	configMessage := file.Messages().ByName("Config")
	if configMessage == nil {
		return nil, fmt.Errorf("config schema has no Config message")
	}
	return configMessage, nil
})
