// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package docs

// Global content for help and man pages
const (

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// main virtbuild command
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	VirtbuildUse   string = `virtbuild [global options...]`
	VirtbuildShort string = `Build virtual machine disk images from signed template repositories`
	VirtbuildLong  string = `
  Virtbuild downloads pre-built, signed operating system templates from
  configured repositories, verifies their provenance, and transforms them
  into ready-to-boot disk images of the requested size and format. User
  customizations such as packages, files and scripts are applied inside
  the guest filesystem before the image is handed over.`
	VirtbuildExample string = `
  $ virtbuild help <command>
  $ virtbuild build fedora-30 --output fedora.img --size 20G
  $ virtbuild list --long`

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// build
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	BuildUse   string = `build [build options...] <os-version>`
	BuildShort string = `Build a disk image from a repository template`
	BuildLong  string = `
  The build command locates <os-version> in the configured repositories
  (aliases resolve like names), downloads and verifies the template,
  caches it, and produces the output image through the cheapest sequence
  of transformations. Customization options apply in the order they are
  given on the command line.`
	BuildExample string = `
  $ virtbuild build fedora-30
  $ virtbuild build f30 --output /dev/vg/lv --format raw
  $ virtbuild build ubuntu-18.04 --size 40G --install vim,openssh-server \
      --root-password password:insecure
  $ virtbuild build fedora-30 --source https://example.com/index.asc \
      --fingerprint 'F777 2793 FB22 B52A 8F04  A9C9 3BAE B0B7 2E41 7DB0'`

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// list
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	ListUse   string = `list [list options...]`
	ListShort string = `List the templates available in the configured repositories`
	ListLong  string = `
  The list command prints every template advertised by the configured
  repositories, newest revision per (name, architecture) pair. Hidden
  templates are omitted unless requested.`
	ListExample string = `
  $ virtbuild list
  $ virtbuild list --long
  $ virtbuild list --json`

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// cache
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	CacheUse   string = `cache`
	CacheShort string = `Manage the local template cache`
	CacheLong  string = `
  Downloaded templates are kept in a local cache so later builds of the
  same os-version skip the download. The cache subcommands inspect and
  clean that directory.`
	CacheExample string = `
  $ virtbuild cache list
  $ virtbuild cache clean`

	CacheCleanUse     string = `clean`
	CacheCleanShort   string = `Remove all cached templates`
	CacheCleanLong    string = `
  Remove every downloaded template from the cache directory. The next
  build downloads its template again.`
	CacheCleanExample string = `
  $ virtbuild cache clean`

	CacheListUse     string = `list`
	CacheListShort   string = `List cached templates`
	CacheListLong    string = `
  Print the templates currently present in the cache directory together
  with their on-disk sizes.`
	CacheListExample string = `
  $ virtbuild cache list`

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// capabilities
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	CapabilitiesUse   string = `capabilities`
	CapabilitiesShort string = `Print the machine readable capability list`
	CapabilitiesLong  string = `
  Print one capability per line and exit. Wrapper programs use this to
  probe what this build of virtbuild supports.`
	CapabilitiesExample string = `
  $ virtbuild capabilities`
)
