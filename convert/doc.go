/*
Package convert validates 23andMe raw genotype exports and re-encodes
their calls as VCF.

A Cleaner makes one pass over the export: it normalizes the generation
dateline, checks the comment header against the known 23andMe header
revisions and keeps only body lines of the form

	rsid|internal-id <TAB> chromosome <TAB> position <TAB> genotype

An Encoder then reads the cleaned copy and looks up each position in a
reference.Genome to decide REF, ALT and the index-encoded GT of the single
sample column. Calls without a reference base are left out of the VCF
but stay in the cleaned copy.
*/
package convert
