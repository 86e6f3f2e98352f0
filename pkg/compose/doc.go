// Package compose expands draky recipes into compose documents.
//
// A recipe lists services. Each one is either declared inline or extends a service
// defined in another file:
//
//	services:
//	  php:
//	    extends:
//	      file: ../../addons/php/services.yml
//	      service: php
//	    environment:
//	      PHP_MEMORY_LIMIT: ${PHP_MEMORY_LIMIT}
//	    draky:
//	      addons: [php]
//
// Expansion resolves every extends block (local keys win, no deep merge), folds the
// top-level keys of extended files into the document (the higher version wins, mappings
// are united with earlier values winning) and rewrites relative volume, build and env_file
// paths so they stay valid next to the generated file. The draky block is private and is
// stripped unless WithUncleaned is used.
//
// Variable references are left untouched by expansion. When enabled with
// SetSubstituteVariables, they are substituted on the serialized text.
package compose
